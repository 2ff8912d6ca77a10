package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
)

// Collector implements prometheus.Collector for device capability values.
// Values are read from the registry on every scrape.
type Collector struct {
	devices DeviceLister

	capabilityValue *prometheus.Desc
	deviceCount     *prometheus.Desc
	scrapeSuccess   *prometheus.Desc
}

// NewCollector creates a collector over devices.
func NewCollector(devices DeviceLister) *Collector {
	return &Collector{
		devices: devices,
		capabilityValue: prometheus.NewDesc(
			namespace+"_capability_value",
			"Current numeric or boolean capability value (booleans as 1/0)",
			[]string{"device_id", "capability"},
			nil,
		),
		deviceCount: prometheus.NewDesc(
			namespace+"_devices",
			"Number of devices by driver",
			[]string{"driver"},
			nil,
		),
		scrapeSuccess: prometheus.NewDesc(
			namespace+"_device_scrape_success",
			"Whether listing devices for this scrape succeeded",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capabilityValue
	ch <- c.deviceCount
	ch <- c.scrapeSuccess
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	devices, err := c.devices.ListDevices(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 1)

	counts := make(map[device.Driver]int, len(device.AllDrivers()))
	for _, d := range device.AllDrivers() {
		counts[d] = 0
	}

	for _, d := range devices {
		counts[d.Driver]++
		for capability, value := range d.Values {
			v, ok := device.NumericValue(value)
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.capabilityValue, prometheus.GaugeValue, v, d.ID, string(capability))
		}
	}

	for driver, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.deviceCount, prometheus.GaugeValue, float64(n), string(driver))
	}
}
