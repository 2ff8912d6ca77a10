// Package device provides the Device Registry for the Teslemetry bridge.
//
// Every paired Teslemetry product (an energy site or a vehicle) is a Device
// that exposes its readings and settings as named capabilities. The bridge
// writes readings into the registry; users change settings through
// capability listeners registered by the bridge.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                       Device Registry                        │
//	│                                                              │
//	│  ┌──────────────────┐    ┌──────────────────┐                │
//	│  │     Registry     │    │    Repository    │                │
//	│  │   (registry.go)  │───▶│  (repository.go) │                │
//	│  │                  │    │                  │                │
//	│  │ • In-memory cache│    │ • SQLite queries │                │
//	│  │ • Capability ops │    │ • JSON columns   │                │
//	│  │ • Listeners      │    └──────────────────┘                │
//	│  │ • Change hooks   │                                        │
//	│  └──────────────────┘                                        │
//	└──────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Device: a paired product, identified by its pairing data (site id or VIN)
//   - Capability: a typed attribute such as measure_battery or backup_reserve
//   - CapabilityListener: handler for a user-initiated capability change
//   - Store: a per-device view used by the bridge controllers
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	unregister := registry.RegisterCapabilityListener(id, device.CapBackupReserve,
//	    func(ctx context.Context, v any) error {
//	        return site.SetBackupReserve(ctx, int(v.(float64)))
//	    })
//	defer unregister()
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Devices returned from
// queries are deep copies.
package device
