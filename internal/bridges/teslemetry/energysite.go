package teslemetry

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// CapabilityStore is the per-device capability storage a controller writes
// to. It is satisfied by *device.Store.
type CapabilityStore interface {
	DeviceID() string
	Capabilities(ctx context.Context) ([]device.Capability, error)
	HasCapability(ctx context.Context, c device.Capability) bool
	AddCapability(ctx context.Context, c device.Capability) error
	RemoveCapability(ctx context.Context, c device.Capability) error
	SetClass(ctx context.Context, class device.Class) error
	GetCapabilityValue(ctx context.Context, c device.Capability) (any, error)
	SetCapabilityValue(ctx context.Context, c device.Capability, value any) error
	RegisterCapabilityListener(c device.Capability, fn device.CapabilityListener) func()
}

// PollingRegistrar starts polling topics and delivers their events.
// It is satisfied by *teslemetry.SiteAPI.
type PollingRegistrar interface {
	RequestPolling(topic tslm.Topic) func()
	On(topic tslm.Topic, fn func(tslm.Event)) func()
}

// SiteAPI is the set of energy site setters a controller forwards user
// changes to. It is satisfied by *teslemetry.SiteAPI.
type SiteAPI interface {
	SetBackupReserve(ctx context.Context, percent int) error
	SetOffGridVehicleChargingReserve(ctx context.Context, percent int) error
	SetOperationMode(ctx context.Context, mode string) error
	SetStormMode(ctx context.Context, enabled bool) error
	GridImportExport(ctx context.Context, exportRule string, disallowChargeFromGrid bool) error
}

// Site is a resolved energy site.
type Site interface {
	PollingRegistrar
	SiteAPI
}

// SiteResolver looks up an energy site by its identifier.
type SiteResolver interface {
	ResolveSite(id string) (Site, bool)
}

// SiteResolverFunc adapts a function to SiteResolver.
type SiteResolverFunc func(id string) (Site, bool)

// ResolveSite implements SiteResolver.
func (f SiteResolverFunc) ResolveSite(id string) (Site, bool) { return f(id) }

// EnergySiteOptions configures an EnergySiteController.
type EnergySiteOptions struct {
	// SiteID is the Teslemetry energy site identifier (the device's pairing key).
	SiteID string

	// Store is the device's capability storage.
	Store CapabilityStore

	// Sites resolves SiteID to the site's API on Init.
	Sites SiteResolver

	// Logger is optional.
	Logger Logger

	// OnReport is optional and observes every handled event.
	OnReport func(WriteReport)
}

// EnergySiteController keeps one energy-site device in sync with its
// Teslemetry site: polled telemetry and configuration flow into capability
// values, and user capability changes flow back as API calls.
//
// Thread Safety: all methods are safe for concurrent use. Site info and
// live status events may be handled concurrently; they write disjoint
// capabilities.
type EnergySiteController struct {
	siteID   string
	store    CapabilityStore
	sites    SiteResolver
	logger   Logger
	onReport func(WriteReport)

	mu      sync.Mutex
	site    Site
	cleanup []func()
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewEnergySiteController creates a controller. Call Init to start it.
func NewEnergySiteController(opts EnergySiteOptions) *EnergySiteController {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &EnergySiteController{
		siteID:   opts.SiteID,
		store:    opts.Store,
		sites:    opts.Sites,
		logger:   logger,
		onReport: opts.OnReport,
	}
}

// SiteID returns the energy site identifier.
func (c *EnergySiteController) SiteID() string { return c.siteID }

// Init resolves the site, registers capability listeners and subscribes to
// the siteInfo and liveStatus topics.
//
// Returns ErrSiteNotFound, leaving nothing registered, if the site cannot
// be resolved. Calling Init on a running controller is a no-op.
func (c *EnergySiteController) Init(ctx context.Context) error {
	site, ok := c.sites.ResolveSite(c.siteID)
	if !ok || site == nil {
		c.logger.Error("failed to initialise energy site", "site_id", c.siteID, "error", ErrSiteNotFound)
		return fmt.Errorf("%w: %s", ErrSiteNotFound, c.siteID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.site != nil {
		return nil
	}
	c.site = site
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))

	c.cleanup = append(c.cleanup, c.registerListeners(site)...)
	c.cleanup = append(c.cleanup,
		site.On(tslm.TopicSiteInfo, c.onSiteInfo),
		site.On(tslm.TopicLiveStatus, c.onLiveStatus),
		site.RequestPolling(tslm.TopicSiteInfo),
		site.RequestPolling(tslm.TopicLiveStatus),
	)

	c.logger.Info("energy site initialised", "site_id", c.siteID, "device_id", c.store.DeviceID())
	return nil
}

// Uninit invokes every retained cleanup handle exactly once. Calling it
// again, or before Init, does nothing.
func (c *EnergySiteController) Uninit() {
	c.mu.Lock()
	handles := c.cleanup
	c.cleanup = nil
	cancel := c.cancel
	c.site = nil
	c.mu.Unlock()

	for _, stop := range handles {
		stop()
	}
	if cancel != nil {
		cancel()
		c.logger.Info("energy site stopped", "site_id", c.siteID)
	}
}

func (c *EnergySiteController) eventContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *EnergySiteController) onLiveStatus(ev tslm.Event) {
	status, _ := ev.Response.(*tslm.LiveStatus)
	c.HandleLiveStatus(c.eventContext(), status)
}

func (c *EnergySiteController) onSiteInfo(ev tslm.Event) {
	info, _ := ev.Response.(*tslm.SiteInfo)
	c.HandleSiteInfo(c.eventContext(), info)
}

// ─── Inbound: telemetry to capabilities ─────────────────────────────

// HandleLiveStatus projects a live status snapshot onto capability values.
// A nil snapshot is a no-op. Fields the site did not report are written
// as unknown (nil); capabilities the device lacks are skipped.
func (c *EnergySiteController) HandleLiveStatus(ctx context.Context, data *tslm.LiveStatus) WriteReport {
	report := WriteReport{SiteID: c.siteID, Topic: tslm.TopicLiveStatus}
	if data == nil {
		report.Empty = true
		return report
	}

	fields := []struct {
		cap   device.Capability
		value any
	}{
		{device.CapMeasureBattery, floatValue(data.PercentageCharged)},
		{device.CapMeasureEnergyLeft, floatValue(data.EnergyLeft)},
		{device.CapMeasurePower, floatValue(data.BatteryPower)},
		{device.CapMeasurePowerSolar, floatValue(data.SolarPower)},
		{device.CapMeasureLoadPower, floatValue(data.LoadPower)},
		{device.CapMeasureHomeUsage, floatValue(data.LoadPower)},
		{device.CapMeasurePowerGrid, floatValue(data.GridPower)},
		{device.CapMeasureGeneratorExported, floatValue(data.GeneratorPower)},
		{device.CapMeasureIslandStatus, stringValue(data.IslandStatus)},
		{device.CapStormWatchActive, boolValue(data.StormModeActive)},
		{device.CapGridStatus, GridStatusActive(data.GridStatus)},
	}
	for _, f := range fields {
		report.add(c.write(ctx, f.cap, f.value, false))
	}

	if data.GridPower != nil {
		report.add(c.write(ctx, device.CapMeasureGridExported, ExportedGridPower(*data.GridPower), false))
	}

	c.finish(report)
	return report
}

// HandleSiteInfo reconciles the capability set and class with the site
// configuration, then pushes the configuration-derived values. A nil
// snapshot is a no-op. Values the site did not report are left unchanged.
func (c *EnergySiteController) HandleSiteInfo(ctx context.Context, data *tslm.SiteInfo) WriteReport {
	report := WriteReport{SiteID: c.siteID, Topic: tslm.TopicSiteInfo}
	if data == nil {
		report.Empty = true
		return report
	}

	set := ResolveCapabilities(data)
	added, removed, err := ReconcileCapabilities(ctx, c.store, set.Capabilities)
	report.Added, report.Removed = added, removed
	if err != nil {
		c.logger.Error("failed to reconcile capabilities", "site_id", c.siteID, "error", err)
		report.Errors = append(report.Errors, err)
	}
	if len(added) > 0 || len(removed) > 0 {
		c.logger.Info("capabilities reconciled", "site_id", c.siteID, "added", added, "removed", removed)
	}

	if err := c.store.SetClass(ctx, set.Class); err != nil {
		c.logger.Error("failed to set device class", "site_id", c.siteID, "class", set.Class, "error", err)
		report.Errors = append(report.Errors, fmt.Errorf("setting class: %w", err))
	}

	comp := data.Components
	fields := []struct {
		cap   device.Capability
		value any
	}{
		{device.CapBackupReserve, floatValue(data.BackupReservePercent)},
		{device.CapOperationMode, stringValue(data.DefaultRealMode)},
		{device.CapAllowExport, AllowExportRule(comp)},
		{device.CapChargeFromGrid, ChargeFromGrid(comp)},
		{device.CapStormWatch, boolValue(data.UserSettings.StormModeEnabled)},
		{device.CapOffGridReserve, floatValue(data.OffGridVehicleChargingReservePercent)},
		{device.CapGridServicesEnabled, boolValue(comp.GridServicesEnabled)},
		{device.CapMeasureVPPBackupReserve, floatValue(data.VPPBackupReservePercent)},
	}
	for _, f := range fields {
		report.add(c.write(ctx, f.cap, f.value, true))
	}

	c.finish(report)
	return report
}

// write sets one capability value, isolating and logging any failure.
func (c *EnergySiteController) write(ctx context.Context, capability device.Capability, value any, skipNil bool) FieldResult {
	res := FieldResult{Capability: capability, Value: value}

	if !c.store.HasCapability(ctx, capability) || (skipNil && value == nil) {
		res.Status = WriteSkipped
		return res
	}

	if err := c.store.SetCapabilityValue(ctx, capability, value); err != nil {
		c.logger.Error("failed to set capability value",
			"site_id", c.siteID,
			"capability", capability,
			"error", err)
		res.Status = WriteFailed
		res.Err = err
		return res
	}

	res.Status = WriteOK
	return res
}

func (c *EnergySiteController) finish(report WriteReport) {
	c.logger.Debug("energy site event handled",
		"site_id", c.siteID,
		"topic", report.Topic,
		"written", report.Count(WriteOK),
		"skipped", report.Count(WriteSkipped),
		"failed", report.Count(WriteFailed))

	if c.onReport != nil {
		c.onReport(report)
	}
}

func floatValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolValue(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

// ─── Outbound: user changes to API calls ────────────────────────────

// registerListeners installs the capability listeners and returns their
// unregister functions.
func (c *EnergySiteController) registerListeners(site SiteAPI) []func() {
	listeners := map[device.Capability]device.CapabilityListener{
		device.CapBackupReserve: func(ctx context.Context, v any) error {
			percent, err := percentValue(v)
			if err != nil {
				return err
			}
			return site.SetBackupReserve(ctx, percent)
		},
		device.CapOffGridReserve: func(ctx context.Context, v any) error {
			percent, err := percentValue(v)
			if err != nil {
				return err
			}
			return site.SetOffGridVehicleChargingReserve(ctx, percent)
		},
		device.CapOperationMode: func(ctx context.Context, v any) error {
			mode, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: operation_mode expects a string", device.ErrInvalidValue)
			}
			return site.SetOperationMode(ctx, mode)
		},
		device.CapStormWatch: func(ctx context.Context, v any) error {
			enabled, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%w: storm_watch expects a boolean", device.ErrInvalidValue)
			}
			return site.SetStormMode(ctx, enabled)
		},
		device.CapChargeFromGrid: func(ctx context.Context, v any) error {
			allow, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%w: charge_from_grid expects a boolean", device.ErrInvalidValue)
			}
			return site.GridImportExport(ctx, c.currentExportRule(ctx), !allow)
		},
		device.CapAllowExport: func(ctx context.Context, v any) error {
			rule, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: allow_export expects a string", device.ErrInvalidValue)
			}
			return site.GridImportExport(ctx, rule, !c.currentChargeFromGrid(ctx))
		},
	}

	handles := make([]func(), 0, len(listeners))
	for _, capability := range []device.Capability{
		device.CapBackupReserve,
		device.CapOffGridReserve,
		device.CapOperationMode,
		device.CapStormWatch,
		device.CapChargeFromGrid,
		device.CapAllowExport,
	} {
		handles = append(handles, c.store.RegisterCapabilityListener(capability, c.logged(capability, listeners[capability])))
	}
	return handles
}

// logged wraps a listener so every forwarded change is logged with its outcome.
func (c *EnergySiteController) logged(capability device.Capability, fn device.CapabilityListener) device.CapabilityListener {
	return func(ctx context.Context, v any) error {
		if err := fn(ctx, v); err != nil {
			c.logger.Warn("capability change rejected",
				"site_id", c.siteID,
				"capability", capability,
				"value", v,
				"error", err)
			return err
		}
		c.logger.Info("capability change forwarded", "site_id", c.siteID, "capability", capability, "value", v)
		return nil
	}
}

// currentExportRule returns the stored allow_export value, or "" when unknown.
func (c *EnergySiteController) currentExportRule(ctx context.Context) string {
	v, err := c.store.GetCapabilityValue(ctx, device.CapAllowExport)
	if err != nil {
		return ""
	}
	rule, _ := v.(string)
	return rule
}

// currentChargeFromGrid returns the stored charge_from_grid value,
// defaulting to allowed when unknown.
func (c *EnergySiteController) currentChargeFromGrid(ctx context.Context) bool {
	v, err := c.store.GetCapabilityValue(ctx, device.CapChargeFromGrid)
	if err != nil {
		return true
	}
	allow, ok := v.(bool)
	return !ok || allow
}

func percentValue(v any) (int, error) {
	f, ok := device.NumericValue(v)
	if !ok {
		return 0, fmt.Errorf("%w: expected a percentage, got %T", device.ErrInvalidValue, v)
	}
	return int(math.Round(f)), nil
}
