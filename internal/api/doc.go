// Package api implements the HTTP REST API of the Teslemetry bridge.
//
// This package provides:
//   - Read access to the device registry, renaming and removing devices
//   - Capability changes, forwarded to Teslemetry through the bridge
//   - The vehicle pairing list and vehicle pairing
//   - The command log of capability changes
//   - Health and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /metrics
//	GET    /api/v1/devices[?driver=energy-site|vehicle]
//	GET    /api/v1/devices/{id}
//	PATCH  /api/v1/devices/{id}                             {"name": "..."}
//	DELETE /api/v1/devices/{id}
//	PUT    /api/v1/devices/{id}/capabilities/{capability}   {"value": ...}
//	GET    /api/v1/pairing/vehicles
//	POST   /api/v1/pairing/vehicles                         {"vin": "..."}
//	GET    /api/v1/commands[?device_id=&capability=&result=&limit=&offset=]
//
// # Graceful Degradation
//
// Reads keep working while the Teslemetry API is unreachable; only
// capability changes and pairing fail, with 502 responses.
package api
