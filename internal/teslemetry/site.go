package teslemetry

import (
	"context"
	"time"
)

// PollingIntervals sets how often each site topic is fetched.
type PollingIntervals struct {
	SiteInfo   time.Duration
	LiveStatus time.Duration
}

// EnergySite is an energy site in the account together with its bound API.
type EnergySite struct {
	ID           string
	Name         string
	ResourceType string
	API          *SiteAPI
}

// SiteAPI binds the client to one energy site and owns its poller.
type SiteAPI struct {
	client *Client
	siteID string
	poller *Poller
}

// NewSiteAPI creates a site-bound API with its own poller.
func NewSiteAPI(client *Client, siteID string, intervals PollingIntervals, logger Logger) *SiteAPI {
	s := &SiteAPI{client: client, siteID: siteID}
	s.poller = NewPoller(
		map[Topic]FetchFunc{
			TopicSiteInfo: func(ctx context.Context) (any, error) {
				info, err := client.SiteInfo(ctx, siteID)
				if err != nil || info == nil {
					return nil, err
				}
				return info, nil
			},
			TopicLiveStatus: func(ctx context.Context) (any, error) {
				status, err := client.LiveStatus(ctx, siteID)
				if err != nil || status == nil {
					return nil, err
				}
				return status, nil
			},
		},
		map[Topic]time.Duration{
			TopicSiteInfo:   intervals.SiteInfo,
			TopicLiveStatus: intervals.LiveStatus,
		},
		logger,
	)
	return s
}

// SiteID returns the energy site identifier.
func (s *SiteAPI) SiteID() string { return s.siteID }

// RequestPolling starts polling topic; see Poller.RequestPolling.
func (s *SiteAPI) RequestPolling(topic Topic) func() { return s.poller.RequestPolling(topic) }

// On registers a topic handler; see Poller.On.
func (s *SiteAPI) On(topic Topic, fn func(Event)) func() { return s.poller.On(topic, fn) }

// SetBackupReserve sets the backup reserve percentage.
func (s *SiteAPI) SetBackupReserve(ctx context.Context, percent int) error {
	return s.client.SetBackupReserve(ctx, s.siteID, percent)
}

// SetOffGridVehicleChargingReserve sets the off-grid vehicle charging reserve.
func (s *SiteAPI) SetOffGridVehicleChargingReserve(ctx context.Context, percent int) error {
	return s.client.SetOffGridVehicleChargingReserve(ctx, s.siteID, percent)
}

// SetOperationMode sets the default operating mode.
func (s *SiteAPI) SetOperationMode(ctx context.Context, mode string) error {
	return s.client.SetOperationMode(ctx, s.siteID, mode)
}

// SetStormMode toggles Storm Watch.
func (s *SiteAPI) SetStormMode(ctx context.Context, enabled bool) error {
	return s.client.SetStormMode(ctx, s.siteID, enabled)
}

// GridImportExport sets the export rule and grid charging restriction.
func (s *SiteAPI) GridImportExport(ctx context.Context, exportRule string, disallowChargeFromGrid bool) error {
	return s.client.GridImportExport(ctx, s.siteID, exportRule, disallowChargeFromGrid)
}

// Close stops all polling for the site.
func (s *SiteAPI) Close() { s.poller.Close() }
