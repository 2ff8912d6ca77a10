// Package metrics exposes bridge activity and device values to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
)

const namespace = "teslemetry"

// collectTimeout bounds the device listing done on each scrape.
const collectTimeout = 5 * time.Second

// DeviceLister lists devices for the value collector.
// It is satisfied by *device.Registry.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]device.Device, error)
}

// Metrics owns a Prometheus registry with the bridge's counters and the
// device value collector.
type Metrics struct {
	registry *prometheus.Registry

	capabilityWrites *prometheus.CounterVec
	pollErrors       *prometheus.CounterVec
	commands         *prometheus.CounterVec
}

// New creates the metric set. When devices is non-nil a Collector exporting
// current capability values is registered too.
func New(devices DeviceLister) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		capabilityWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_writes_total",
			Help:      "Capability writes from polled data by outcome (written, skipped, failed)",
		}, []string{"result"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed Teslemetry API polls by topic",
		}, []string{"topic"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "User capability changes forwarded to the API by outcome",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.capabilityWrites,
		m.pollErrors,
		m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if devices != nil {
		m.registry.MustRegister(NewCollector(devices))
	}
	return m
}

// RecordCapabilityWrites adds n writes with the given result.
func (m *Metrics) RecordCapabilityWrites(result string, n int) {
	if n <= 0 {
		return
	}
	m.capabilityWrites.WithLabelValues(result).Add(float64(n))
}

// RecordPollError counts a failed poll of topic.
func (m *Metrics) RecordPollError(topic string) {
	m.pollErrors.WithLabelValues(topic).Inc()
}

// RecordCommand counts a forwarded capability change.
func (m *Metrics) RecordCommand(result string) {
	m.commands.WithLabelValues(result).Inc()
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
