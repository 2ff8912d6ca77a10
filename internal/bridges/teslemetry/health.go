package teslemetry

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// defaultHealthInterval is used when HealthReporterConfig.Interval is zero.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Counters tracks bridge activity reported in health messages.
// The zero value is ready to use.
type Counters struct {
	pollsSucceeded atomic.Uint64
	pollsFailed    atomic.Uint64
	commandsOK     atomic.Uint64
	commandsFailed atomic.Uint64
	writesFailed   atomic.Uint64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() BridgeStatistics {
	return BridgeStatistics{
		PollsSucceeded: c.pollsSucceeded.Load(),
		PollsFailed:    c.pollsFailed.Load(),
		CommandsOK:     c.commandsOK.Load(),
		CommandsFailed: c.commandsFailed.Load(),
		WritesFailed:   c.writesFailed.Load(),
	}
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Counters supplies statistics; optional.
	Counters *Counters
}

// HealthReporter publishes the bridge's status to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	counters  *Counters

	deviceCount atomic.Int64

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	counters := cfg.Counters
	if counters == nil {
		counters = &Counters{}
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		counters:  counters,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Go(func() { h.reportLoop(ctx) })
}

// Stop halts reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if err := h.publishStatus(HealthStopping, ""); err != nil {
			h.getLogger().Warn("failed to publish stopping health", "error", err)
		}
	})
}

// SetDeviceCount updates the managed device count.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.deviceCount.Store(int64(count))
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// LWTPayload returns the Last Will and Testament payload: an offline
// health message for this bridge.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	return OfflinePayload(h.bridgeID, h.version)
}

// OfflinePayload builds the offline health message registered as the MQTT
// will. It is needed before the bridge exists, at connect time.
func OfflinePayload(bridgeID, version string) ([]byte, error) {
	return json.Marshal(HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Version:   version,
		Reason:    "unexpected disconnect",
	})
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.getLogger().Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.getLogger().Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus is degraded while MQTT is down, or when polls have failed
// and none has succeeded since start.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	stats := h.counters.Snapshot()
	if stats.PollsFailed > 0 && stats.PollsSucceeded == 0 {
		return HealthDegraded, "Teslemetry API unreachable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	stats := h.counters.Snapshot()
	msg := HealthMessage{
		Bridge:         h.bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		Statistics:     &stats,
		DevicesManaged: int(h.deviceCount.Load()),
		Reason:         reason,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(), payload, 1, true)
}

func (h *HealthReporter) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}
