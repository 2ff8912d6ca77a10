// Package influxdb records capability history in InfluxDB v2.
//
// It wraps influxdb-client-go with non-blocking batched writes. Two
// measurements are written:
//   - capability_values: one point per numeric capability change, tagged
//     by device, driver and capability
//   - energy_site_live: one point per live status poll, tagged by site
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCapabilityValue("dev-1", "energy-site", "measure_battery", 81)
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
