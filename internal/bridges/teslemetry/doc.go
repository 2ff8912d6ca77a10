// Package teslemetry implements the Teslemetry bridge for Gray Logic.
//
// It keeps Gray Logic devices in sync with Tesla energy sites and vehicles
// reached through the Teslemetry cloud API (see internal/teslemetry for the
// API client itself).
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐   HTTPS
//	│   Gray Logic    │   MQTT   │ Teslemetry      │◄────────► Teslemetry API
//	│      Core       │◄────────►│ Bridge (here)   │
//	└─────────────────┘          └─────────────────┘
//
// # Energy Sites
//
// Each energy-site device is driven by an EnergySiteController. Site info
// decides which capabilities the device carries (ResolveCapabilities) and the
// set is reconciled on every poll, so hardware added or removed from the site
// shows up without re-pairing. Live status fills the measurement capabilities.
// User changes to setable capabilities (backup reserve, operation mode, grid
// export rule and so on) are forwarded to the API and only stored once the
// API accepts them.
//
// # Vehicles
//
// VehicleDriver lists the account's vehicles that support fleet telemetry for
// the pairing wizard. Bridge.PairVehicle creates the device.
//
// # Removal
//
// Bridge.RemoveDevice stops the device's controller, releasing its polling and
// capability listeners, then deletes the device and clears its retained state.
// A site that disappears from the account on refresh has its controller
// stopped but keeps its device.
//
// # MQTT Topics
//
//	graylogic/command/teslemetry/{device_id}   Core → bridge  set_capability
//	graylogic/ack/teslemetry/{device_id}       bridge → Core
//	graylogic/state/teslemetry/{device_id}     bridge → Core  retained
//	graylogic/request/teslemetry/{request_id}  Core → bridge  list_vehicles, pair_vehicle,
//	                                                          refresh_products, read_state,
//	                                                          rename_device, remove_device
//	graylogic/response/teslemetry/{request_id} bridge → Core
//	graylogic/health/teslemetry                bridge → Core  retained
package teslemetry
