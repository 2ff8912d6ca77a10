package teslemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/config"
)

const (
	// DefaultBaseURL is the public Teslemetry API root.
	DefaultBaseURL = "https://api.teslemetry.com"

	defaultRequestTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4096

	userAgent = "graylogic-teslemetry"
)

// Logger defines the logging interface used by the client and poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is a Teslemetry REST API client.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client from the teslemetry config section.
//
// Parameters:
//   - cfg: Teslemetry configuration (base URL, token, timeout)
//   - opts: Optional overrides
//
// Returns:
//   - *Client: Ready-to-use client; no request is made until a method is called
func NewClient(cfg config.TeslemetryConfig, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.GetRequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	c := &Client{
		baseURL: baseURL,
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: timeout},
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the wrapper used by most Teslemetry responses.
type envelope struct {
	Response         json.RawMessage `json:"response"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Products returns the vehicles and energy sites visible to the token.
// Energy sites in the result have no API binding; use a Catalog for that.
func (c *Client) Products(ctx context.Context) ([]Vehicle, []SiteSummary, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, "/api/1/products", &raw); err != nil {
		return nil, nil, err
	}

	var vehicles []Vehicle
	var sites []SiteSummary
	for _, item := range raw {
		var head struct {
			VIN          string      `json:"vin"`
			EnergySiteID json.Number `json:"energy_site_id"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, nil, fmt.Errorf("decoding product: %w", err)
		}
		switch {
		case head.VIN != "":
			var v Vehicle
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, nil, fmt.Errorf("decoding vehicle: %w", err)
			}
			vehicles = append(vehicles, v)
		case head.EnergySiteID != "":
			var s SiteSummary
			if err := json.Unmarshal(item, &s); err != nil {
				return nil, nil, fmt.Errorf("decoding energy site: %w", err)
			}
			s.ID = head.EnergySiteID.String()
			sites = append(sites, s)
		default:
			c.logger.Debug("skipping unrecognised product")
		}
	}
	return vehicles, sites, nil
}

// SiteSummary is an energy site entry in the product list.
type SiteSummary struct {
	ID           string `json:"-"`
	SiteName     string `json:"site_name"`
	ResourceType string `json:"resource_type"`
}

// Metadata returns account metadata, including per-VIN telemetry support.
// This endpoint is not wrapped in a response envelope.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	var md Metadata
	if err := c.do(ctx, http.MethodGet, "/api/1/metadata", nil, func(body []byte) error {
		return json.Unmarshal(body, &md)
	}); err != nil {
		return nil, err
	}
	return &md, nil
}

// LiveStatus fetches the live telemetry of an energy site.
// Returns nil without error when the site reported nothing.
func (c *Client) LiveStatus(ctx context.Context, siteID string) (*LiveStatus, error) {
	var ls *LiveStatus
	if err := c.get(ctx, sitePath(siteID, "live_status"), &ls); err != nil {
		return nil, err
	}
	return ls, nil
}

// SiteInfo fetches the configuration of an energy site.
// Returns nil without error when the site reported nothing.
func (c *Client) SiteInfo(ctx context.Context, siteID string) (*SiteInfo, error) {
	var si *SiteInfo
	if err := c.get(ctx, sitePath(siteID, "site_info"), &si); err != nil {
		return nil, err
	}
	return si, nil
}

// SetBackupReserve sets the percentage of battery kept for outages.
func (c *Client) SetBackupReserve(ctx context.Context, siteID string, percent int) error {
	return c.command(ctx, siteID, "backup", map[string]any{"backup_reserve_percent": percent})
}

// SetOffGridVehicleChargingReserve sets the battery percentage below which
// vehicles stop charging while off grid.
func (c *Client) SetOffGridVehicleChargingReserve(ctx context.Context, siteID string, percent int) error {
	return c.command(ctx, siteID, "off_grid_vehicle_charging_reserve",
		map[string]any{"off_grid_vehicle_charging_reserve_percent": percent})
}

// SetOperationMode sets the site's default operating mode.
func (c *Client) SetOperationMode(ctx context.Context, siteID, mode string) error {
	return c.command(ctx, siteID, "operation", map[string]any{"default_real_mode": mode})
}

// SetStormMode enables or disables Storm Watch.
func (c *Client) SetStormMode(ctx context.Context, siteID string, enabled bool) error {
	return c.command(ctx, siteID, "storm_mode", map[string]any{"enabled": enabled})
}

// GridImportExport sets the export rule and whether charging from the grid
// is disallowed when solar is installed.
func (c *Client) GridImportExport(ctx context.Context, siteID, exportRule string, disallowChargeFromGrid bool) error {
	body := map[string]any{
		"disallow_charge_from_grid_with_solar_installed": disallowChargeFromGrid,
	}
	if exportRule != "" {
		body["customer_preferred_export_rule"] = exportRule
	}
	return c.command(ctx, siteID, "grid_import_export", body)
}

func (c *Client) command(ctx context.Context, siteID, action string, body any) error {
	var result CommandResult
	if err := c.post(ctx, sitePath(siteID, action), body, &result); err != nil {
		return err
	}
	c.logger.Debug("energy site command sent", "site_id", siteID, "action", action, "code", result.Code)
	return nil
}

func sitePath(siteID, endpoint string) string {
	return "/api/1/energy_sites/" + url.PathEscape(siteID) + "/" + endpoint
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	return c.do(ctx, http.MethodGet, path, nil, unwrapInto(target))
}

func (c *Client) post(ctx context.Context, path string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, unwrapInto(target))
}

// unwrapInto decodes the response envelope and then its response member.
func unwrapInto(target any) func([]byte) error {
	return func(body []byte) error {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return err
		}
		if len(env.Response) == 0 {
			return nil
		}
		return json.Unmarshal(env.Response, target)
	}
}

// do performs a request and hands a successful body to decode.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, decode func([]byte) error) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("teslemetry request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(method, path, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrRequestFailed, path, err)
	}
	if err := decode(body); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrRequestFailed, path, err)
	}
	return nil
}

func apiError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(body))
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		msg = env.Error
		if env.ErrorDescription != "" {
			msg += ": " + env.ErrorDescription
		}
	}

	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}
