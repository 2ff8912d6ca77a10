package teslemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-teslemetry/internal/audit"
	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/mqtt"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3

	// commandTimeout bounds a single capability change round trip to the API.
	commandTimeout = 15 * time.Second

	// refreshTimeout bounds a product catalog refresh.
	refreshTimeout = 30 * time.Second

	// auditTimeout bounds writing one command log entry.
	auditTimeout = 5 * time.Second
)

// Command sources recorded in the command log.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// MQTTClient is the interface for MQTT operations.
// It is satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Registry is the device registry used by the bridge.
// It is satisfied by *device.Registry.
type Registry interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListByDriver(ctx context.Context, driver device.Driver) ([]device.Device, error)
	EnsureDevice(ctx context.Context, d *device.Device) (*device.Device, bool, error)
	RenameDevice(ctx context.Context, id, name string) error
	DeleteDevice(ctx context.Context, id string) error
	Store(id string) *device.Store
	TriggerCapabilityListener(ctx context.Context, id string, c device.Capability, value any) error
	OnValueChange(fn device.ValueChangeFunc) func()
}

// Catalog supplies the account's products.
// It is satisfied by *teslemetry.Catalog.
type Catalog interface {
	ProductSource
	Refresh(ctx context.Context) (*tslm.Products, error)
}

// HistoryWriter records capability values as time series.
// It is satisfied by *influxdb.Client.
type HistoryWriter interface {
	WriteCapabilityValue(deviceID, driver, capability string, value float64)
	WriteEnergySiteSnapshot(siteID string, fields map[string]any, timestamp time.Time)
}

// Recorder counts bridge activity. It is satisfied by *metrics.Metrics.
type Recorder interface {
	RecordCapabilityWrites(result string, n int)
	RecordPollError(topic string)
	RecordCommand(result string)
}

// CommandLog records capability change requests.
// It is satisfied by *audit.SQLiteRepository.
type CommandLog interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID identifies this bridge instance in health messages.
	BridgeID string

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Zero uses the default.
	HealthInterval time.Duration

	// AutoProvisionSites creates a device for every energy site in the account.
	AutoProvisionSites bool

	MQTTClient MQTTClient
	Registry   Registry
	Catalog    Catalog

	// Sites resolves energy site APIs. If nil, sites are resolved from
	// the catalog when it is a *teslemetry.Catalog.
	Sites SiteResolver

	// History, Recorder, Commands and Logger are optional.
	History  HistoryWriter
	Recorder Recorder
	Commands CommandLog
	Logger   Logger
}

// Bridge connects Teslemetry products to Gray Logic devices. It:
//   - provisions energy-site devices and runs one controller per device
//   - publishes device state to MQTT and history to InfluxDB on every change
//   - applies capability commands received via MQTT or the HTTP API
//   - answers pairing and maintenance requests
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts     BridgeOptions
	mqtt     MQTTClient
	registry Registry
	catalog  Catalog
	sites    SiteResolver
	vehicles *VehicleDriver
	health   *HealthReporter
	counters *Counters
	logger   Logger

	controllers   map[string]*EnergySiteController // keyed by device ID
	controllersMu sync.Mutex

	unhook func()

	// Shutdown coordination. stopping is set under stateMu before wg.Wait
	// so no handler is added once Stop is waiting.
	wg        sync.WaitGroup
	stateMu   sync.Mutex
	stopping  bool
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
}

// NewBridge creates a new bridge instance. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("product catalog is required")
	}

	sites := opts.Sites
	if sites == nil {
		c, ok := opts.Catalog.(*tslm.Catalog)
		if !ok {
			return nil, errors.New("site resolver is required")
		}
		sites = CatalogSites(c)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	counters := &Counters{}

	b := &Bridge{
		opts:        opts,
		mqtt:        opts.MQTTClient,
		registry:    opts.Registry,
		catalog:     opts.Catalog,
		sites:       sites,
		vehicles:    NewVehicleDriver(opts.Catalog, logger),
		counters:    counters,
		logger:      logger,
		controllers: make(map[string]*EnergySiteController),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Counters:  counters,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// CatalogSites resolves energy sites from a product catalog.
func CatalogSites(c *tslm.Catalog) SiteResolver {
	return SiteResolverFunc(func(id string) (Site, bool) {
		site, ok := c.EnergySite(id)
		if !ok || site.API == nil {
			return nil, false
		}
		return site.API, true
	})
}

// Start loads the product catalog, starts energy site controllers and
// subscribes to command and request topics.
//
// A failed catalog load is logged and tolerated; a later refresh_products
// request retries it.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	b.unhook = b.registry.OnValueChange(b.handleValueChange)

	if err := b.SyncSites(ctx); err != nil {
		b.logger.Warn("initial site sync incomplete", "error", err)
	}

	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logger.Info("subscribed to requests", "topic", requestTopic)

	b.health.Start(b.ctx)

	b.logger.Info("bridge started", "bridge_id", b.opts.BridgeID, "energy_sites", b.ControllerCount())
	return nil
}

// Stop unsubscribes, stops every controller and publishes a final health status.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stateMu.Lock()
		b.stopping = true
		b.stateMu.Unlock()
		b.ctxCancel()

		for _, topic := range []string{CommandSubscribeTopic(), RequestSubscribeTopic()} {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logger.Warn("failed to unsubscribe", "topic", topic, "error", err)
			}
		}

		b.wg.Wait()

		b.controllersMu.Lock()
		controllers := b.controllers
		b.controllers = make(map[string]*EnergySiteController)
		b.controllersMu.Unlock()
		for _, c := range controllers {
			c.Uninit()
		}

		if b.unhook != nil {
			b.unhook()
		}

		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// track registers an in-flight message handler. It reports false once
// Stop has begun; callers that get true must call b.wg.Done.
func (b *Bridge) track() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.stopping {
		return false
	}
	b.wg.Add(1)
	return true
}

// ─── Sites ──────────────────────────────────────────────────────────

// SyncSites refreshes the product catalog, provisions devices for new energy
// sites when enabled, and starts a controller for every energy-site device
// that does not have one yet. Controllers of sites that are no longer in
// the account are stopped; their devices are kept.
//
// Devices whose site cannot be resolved are logged and skipped; the returned
// error joins every failure.
func (b *Bridge) SyncSites(ctx context.Context) error {
	refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	var errs []error

	products, err := b.catalog.Refresh(refreshCtx)
	if err != nil {
		b.logger.Error("failed to refresh products", "error", err)
		errs = append(errs, err)
	}

	if products != nil {
		b.stopVanishedSites(products)
		if b.opts.AutoProvisionSites {
			errs = append(errs, b.provisionSites(ctx, products)...)
		}
	}

	devices, err := b.registry.ListByDriver(ctx, device.DriverEnergySite)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("listing energy sites: %w", err))...)
	}

	for i := range devices {
		if products != nil {
			if _, ok := products.EnergySites[devices[i].PairingKey()]; !ok {
				b.logger.Warn("energy site not in account", "site_id", devices[i].PairingKey(), "device_id", devices[i].ID)
				continue
			}
		}
		if err := b.startController(ctx, &devices[i]); err != nil {
			errs = append(errs, err)
		}
	}

	b.health.SetDeviceCount(b.ControllerCount())
	return errors.Join(errs...)
}

// stopVanishedSites stops every controller whose site is not in products.
func (b *Bridge) stopVanishedSites(products *tslm.Products) {
	var stale []*EnergySiteController
	b.controllersMu.Lock()
	for id, c := range b.controllers {
		if _, ok := products.EnergySites[c.SiteID()]; ok {
			continue
		}
		delete(b.controllers, id)
		stale = append(stale, c)
	}
	b.controllersMu.Unlock()

	for _, c := range stale {
		c.Uninit()
		b.logger.Info("energy site controller stopped", "site_id", c.SiteID())
	}
}

func (b *Bridge) provisionSites(ctx context.Context, products *tslm.Products) []error {
	var errs []error
	for id, site := range products.EnergySites {
		name := site.Name
		if name == "" {
			name = "Energy Site " + id
		}
		d, created, err := b.registry.EnsureDevice(ctx, &device.Device{
			Driver: device.DriverEnergySite,
			Name:   name,
			Class:  device.ClassOther,
			Data:   map[string]string{device.DataKeySiteID: id},
		})
		if err != nil {
			b.logger.Error("failed to provision energy site", "site_id", id, "error", err)
			errs = append(errs, fmt.Errorf("provisioning site %s: %w", id, err))
			continue
		}
		if created {
			b.logger.Info("energy site provisioned", "site_id", id, "device_id", d.ID)
		}
	}
	return errs
}

func (b *Bridge) startController(ctx context.Context, d *device.Device) error {
	b.controllersMu.Lock()
	defer b.controllersMu.Unlock()

	if _, running := b.controllers[d.ID]; running {
		return nil
	}

	siteID := d.PairingKey()
	c := NewEnergySiteController(EnergySiteOptions{
		SiteID:   siteID,
		Store:    b.registry.Store(d.ID),
		Sites:    b.sites,
		Logger:   b.logger,
		OnReport: b.handleReport,
	})
	if err := c.Init(ctx); err != nil {
		return fmt.Errorf("device %s: %w", d.ID, err)
	}
	b.controllers[d.ID] = c
	return nil
}

// stopController stops and forgets the controller of a device, if any.
func (b *Bridge) stopController(deviceID string) bool {
	b.controllersMu.Lock()
	c, ok := b.controllers[deviceID]
	delete(b.controllers, deviceID)
	b.controllersMu.Unlock()

	if ok {
		c.Uninit()
	}
	return ok
}

// RemoveDevice stops the device's controller, releasing its polling and
// capability listeners, and deletes the device. Returns
// device.ErrDeviceNotFound if no such device exists.
func (b *Bridge) RemoveDevice(ctx context.Context, id string) error {
	d, err := b.registry.GetDevice(ctx, id)
	if err != nil {
		return err
	}

	stopped := b.stopController(id)
	if err := b.registry.DeleteDevice(ctx, id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	b.health.SetDeviceCount(b.ControllerCount())

	// An empty retained payload clears the state topic.
	if err := b.mqtt.Publish(StateTopic(id), nil, 1, true); err != nil {
		b.logger.Warn("failed to clear retained state", "device_id", id, "error", err)
	}

	b.logger.Info("device removed", "device_id", id, "driver", d.Driver, "controller_stopped", stopped)
	return nil
}

// RenameDevice changes a device's display name.
func (b *Bridge) RenameDevice(ctx context.Context, id, name string) error {
	return b.registry.RenameDevice(ctx, id, name)
}

// ControllerCount returns the number of running energy site controllers.
func (b *Bridge) ControllerCount() int {
	b.controllersMu.Lock()
	defer b.controllersMu.Unlock()
	return len(b.controllers)
}

// HandlePollError records a failed poll. Register it with the catalog's
// poll error handler.
func (b *Bridge) HandlePollError(topic tslm.Topic, err error) {
	b.counters.pollsFailed.Add(1)
	if b.opts.Recorder != nil {
		b.opts.Recorder.RecordPollError(string(topic))
	}
	b.logger.Debug("poll failed", "topic", topic, "error", err)
}

func (b *Bridge) handleReport(report WriteReport) {
	if report.Empty {
		return
	}
	b.counters.pollsSucceeded.Add(1)

	failed := report.Count(WriteFailed)
	b.counters.writesFailed.Add(uint64(failed))

	if r := b.opts.Recorder; r != nil {
		r.RecordCapabilityWrites(string(WriteOK), report.Count(WriteOK))
		r.RecordCapabilityWrites(string(WriteSkipped), report.Count(WriteSkipped))
		r.RecordCapabilityWrites(string(WriteFailed), failed)
	}

	if b.opts.History == nil || report.Topic != tslm.TopicLiveStatus {
		return
	}
	fields := make(map[string]any)
	for _, res := range report.Results {
		if res.Status != WriteOK {
			continue
		}
		if v, ok := device.NumericValue(res.Value); ok {
			fields[string(res.Capability)] = v
		}
	}
	if len(fields) > 0 {
		b.opts.History.WriteEnergySiteSnapshot(report.SiteID, fields, time.Now())
	}
}

// ─── State ──────────────────────────────────────────────────────────

// handleValueChange publishes the device's retained state and records
// numeric values to history.
func (b *Bridge) handleValueChange(change device.ValueChange) {
	if b.opts.History != nil {
		if v, ok := device.NumericValue(change.Value); ok {
			b.opts.History.WriteCapabilityValue(change.DeviceID, string(change.Driver), string(change.Capability), v)
		}
	}

	d, err := b.registry.GetDevice(b.ctx, change.DeviceID)
	if err != nil {
		b.logger.Warn("failed to load device for state publish", "device_id", change.DeviceID, "error", err)
		return
	}

	msg := StateMessage{
		DeviceID:  d.ID,
		Driver:    d.Driver,
		Timestamp: change.ChangedAt.UTC(),
		Changed:   change.Capability,
		Values:    d.Values,
		Protocol:  Protocol,
	}
	if err := b.publishJSON(StateTopic(d.ID), msg, true); err != nil {
		b.logger.Warn("failed to publish state", "device_id", d.ID, "error", err)
	}
}

// ─── Commands ───────────────────────────────────────────────────────

// SetCapability applies a user-initiated capability change by invoking the
// device's capability listener, which forwards it to the Teslemetry API.
// The stored value is updated only when the listener succeeds.
//
// The change is recorded in the command log with source api.
func (b *Bridge) SetCapability(ctx context.Context, deviceID string, c device.Capability, value any) error {
	return b.setCapability(ctx, SourceAPI, deviceID, c, value)
}

func (b *Bridge) setCapability(ctx context.Context, source, deviceID string, c device.Capability, value any) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := b.registry.TriggerCapabilityListener(ctx, deviceID, c, value)
	result := audit.ResultOK
	if err != nil {
		result = audit.ResultFailed
		b.counters.commandsFailed.Add(1)
	} else {
		b.counters.commandsOK.Add(1)
	}
	if b.opts.Recorder != nil {
		b.opts.Recorder.RecordCommand(result)
	}
	b.recordCommand(ctx, source, deviceID, c, value, err)
	return err
}

// recordCommand writes a command log entry. Failures are logged only.
func (b *Bridge) recordCommand(ctx context.Context, source, deviceID string, c device.Capability, value any, cmdErr error) {
	if b.opts.Commands == nil {
		return
	}

	entry := &audit.Entry{
		DeviceID:   deviceID,
		Capability: c,
		Value:      value,
		Source:     source,
		Result:     audit.ResultOK,
	}
	if cmdErr != nil {
		entry.Result = audit.ResultFailed
		entry.Error = cmdErr.Error()
	}

	// The command context may already have expired.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := b.opts.Commands.Create(ctx, entry); err != nil {
		b.logger.Warn("failed to record command", "device_id", deviceID, "capability", c, "error", err)
	}
}

// handleMQTTMessage routes incoming MQTT messages to the appropriate handler.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	switch parts[1] {
	case "command":
		return b.handleCommand(topic, payload)
	case "request":
		return b.handleRequest(topic, payload)
	default:
		return fmt.Errorf("unknown message type: %s", parts[1])
	}
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parsing command: %w", err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = mqtt.LastSegment(topic)
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"capability", cmd.Capability)

	if cmd.Command != CommandSetCapability {
		return b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("unsupported command %q", cmd.Command)))
	}

	if !b.track() {
		return ErrBridgeStopping
	}
	defer b.wg.Done()

	source := cmd.Source
	if source == "" {
		source = SourceMQTT
	}
	if err := b.setCapability(b.ctx, source, cmd.DeviceID, cmd.Capability, cmd.Value); err != nil {
		b.logger.Warn("command failed", "command_id", cmd.ID, "device_id", cmd.DeviceID, "error", err)
		return b.publishAck(NewAckError(cmd, errorCode(err), err.Error()))
	}
	return b.publishAck(NewAckMessage(cmd, AckAccepted))
}

// errorCode maps a command error to its acknowledgment code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrNoListener):
		return ErrCodeNotConfigured
	case errors.Is(err, device.ErrCapabilityNotFound), errors.Is(err, device.ErrNotSetable):
		return ErrCodeInvalidCommand
	case errors.Is(err, device.ErrInvalidValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, tslm.ErrUnauthorized):
		return ErrCodeUnauthorized
	case errors.Is(err, tslm.ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, tslm.ErrRequestFailed), errors.Is(err, tslm.ErrNotFound):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// ─── Requests ───────────────────────────────────────────────────────

func (b *Bridge) handleRequest(topic string, payload []byte) error {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("parsing request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = mqtt.LastSegment(topic)
	}

	if !b.track() {
		return ErrBridgeStopping
	}
	defer b.wg.Done()

	data, err := b.executeRequest(b.ctx, req)
	if err != nil {
		code := ErrCodeBridgeError
		switch {
		case errors.Is(err, ErrUnknownAction):
			code = ErrCodeInvalidCommand
		case errors.Is(err, ErrVehicleNotPairable), errors.Is(err, device.ErrInvalidDevice),
			errors.Is(err, device.ErrInvalidName):
			code = ErrCodeInvalidParameters
		case errors.Is(err, device.ErrDeviceNotFound):
			code = ErrCodeNotConfigured
		}
		return b.publishJSON(ResponseTopic(req.RequestID), NewErrorResponse(req.RequestID, code, err.Error()), false)
	}
	return b.publishJSON(ResponseTopic(req.RequestID), NewResponse(req.RequestID, data), false)
}

func (b *Bridge) executeRequest(ctx context.Context, req RequestMessage) (map[string]any, error) {
	switch req.Action {
	case ActionListVehicles:
		vehicles, err := b.ListPairingDevices(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"vehicles": vehicles}, nil

	case ActionPairVehicle:
		vin, _ := req.Parameters["vin"].(string)
		d, created, err := b.PairVehicle(ctx, vin)
		if err != nil {
			return nil, err
		}
		return map[string]any{"device_id": d.ID, "created": created}, nil

	case ActionRefreshProducts:
		err := b.SyncSites(ctx)
		data := map[string]any{"energy_sites": b.ControllerCount()}
		return data, err

	case ActionReadState:
		d, err := b.registry.GetDevice(ctx, req.DeviceID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"device_id": d.ID, "values": d.Values}, nil

	case ActionRenameDevice:
		name, _ := req.Parameters["name"].(string)
		if err := b.RenameDevice(ctx, req.DeviceID, name); err != nil {
			return nil, err
		}
		return map[string]any{"device_id": req.DeviceID, "name": name}, nil

	case ActionRemoveDevice:
		if err := b.RemoveDevice(ctx, req.DeviceID); err != nil {
			return nil, err
		}
		return map[string]any{"device_id": req.DeviceID, "removed": true}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

// ─── Vehicles ───────────────────────────────────────────────────────

// ListPairingDevices returns the vehicles that can be paired.
func (b *Bridge) ListPairingDevices(ctx context.Context) ([]PairingDevice, error) {
	return b.vehicles.ListPairingDevices(ctx)
}

// PairVehicle creates a vehicle device for vin, or returns the device
// already paired with it. Returns ErrVehicleNotPairable if vin is not
// offered by ListPairingDevices.
func (b *Bridge) PairVehicle(ctx context.Context, vin string) (*device.Device, bool, error) {
	candidates, err := b.ListPairingDevices(ctx)
	if err != nil {
		return nil, false, err
	}

	for _, c := range candidates {
		if c.Data.VIN != vin {
			continue
		}
		name := c.Name
		if name == "" {
			name = vin
		}
		d, created, err := b.registry.EnsureDevice(ctx, &device.Device{
			Driver: device.DriverVehicle,
			Name:   name,
			Class:  device.ClassCar,
			Icon:   c.Icon,
			Data:   map[string]string{device.DataKeyVIN: vin},
		})
		if err != nil {
			return nil, false, err
		}
		if created {
			b.logger.Info("vehicle paired", "vin", vin, "device_id", d.ID)
		}
		return d, created, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrVehicleNotPairable, vin)
}

// ─── MQTT helpers ───────────────────────────────────────────────────

func (b *Bridge) publishAck(ack AckMessage) error {
	return b.publishJSON(AckTopic(ack.DeviceID), ack, false)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, payload, 1, retained)
}
