package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementCapability holds one point per capability value change.
	MeasurementCapability = "capability_values"

	// MeasurementEnergySite holds one point per live status poll.
	MeasurementEnergySite = "energy_site_live"
)

// WriteCapabilityValue records a numeric capability value for a device.
// Booleans should be passed as 0 or 1.
//
// Parameters:
//   - deviceID: Bridge device ID
//   - driver: Device driver ("energy-site" or "vehicle")
//   - capability: Capability key (e.g., "measure_power.solar")
//   - value: The numeric value
func (c *Client) WriteCapabilityValue(deviceID, driver, capability string, value float64) {
	c.writeAt(MeasurementCapability,
		map[string]string{
			"device_id":  deviceID,
			"driver":     driver,
			"capability": capability,
		},
		map[string]any{"value": value},
		time.Now(),
	)
}

// WriteEnergySiteSnapshot records a full live status sample as one point
// so power flows can be charted against each other at the same instant.
//
// A zero timestamp means now.
func (c *Client) WriteEnergySiteSnapshot(siteID string, fields map[string]any, timestamp time.Time) {
	if len(fields) == 0 {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	c.writeAt(MeasurementEnergySite, map[string]string{"site_id": siteID}, fields, timestamp)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writeAt(measurement, tags, fields, time.Now())
}

func (c *Client) writeAt(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
