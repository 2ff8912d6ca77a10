package device

import (
	"context"
	"maps"
	"slices"
	"time"
)

// Driver identifies which Teslemetry product type a device represents.
type Driver string

// Supported drivers.
const (
	DriverEnergySite Driver = "energy-site"
	DriverVehicle    Driver = "vehicle"
)

// AllDrivers returns every supported driver.
func AllDrivers() []Driver {
	return []Driver{DriverEnergySite, DriverVehicle}
}

// Class is the device category shown to users.
type Class string

// Device classes.
const (
	ClassBattery    Class = "battery"
	ClassSolarPanel Class = "solarpanel"
	ClassCar        Class = "car"
	ClassOther      Class = "other"
)

// AllClasses returns every supported class.
func AllClasses() []Class {
	return []Class{ClassBattery, ClassSolarPanel, ClassCar, ClassOther}
}

// Pairing data keys.
const (
	// DataKeySiteID holds the energy site identifier for energy-site devices.
	DataKeySiteID = "id"

	// DataKeyVIN holds the vehicle identification number for vehicle devices.
	DataKeyVIN = "vin"
)

// Device is a paired Teslemetry product exposed through capabilities.
type Device struct {
	ID     string `json:"id"`
	Driver Driver `json:"driver"`
	Name   string `json:"name"`
	Class  Class  `json:"class"`
	Icon   string `json:"icon,omitempty"`

	// Data is the immutable pairing data, e.g. {"id": "12345"} or {"vin": "..."}.
	Data map[string]string `json:"data"`

	// Capabilities is the ordered capability set currently declared.
	Capabilities []Capability `json:"capabilities"`

	// Values holds the last written value per capability. A nil value means unknown.
	Values          map[Capability]any `json:"values"`
	ValuesUpdatedAt *time.Time         `json:"values_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairingKey returns the vendor identifier this device was paired with.
func (d *Device) PairingKey() string {
	switch d.Driver {
	case DriverEnergySite:
		return d.Data[DataKeySiteID]
	case DriverVehicle:
		return d.Data[DataKeyVIN]
	default:
		return ""
	}
}

// HasCapability reports whether cap is in the device's capability set.
func (d *Device) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// DeepCopy returns a fully independent copy of the device for cache isolation.
// Capability values are scalars so a shallow map clone is sufficient.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Data = maps.Clone(d.Data)
	cpy.Capabilities = slices.Clone(d.Capabilities)
	cpy.Values = maps.Clone(d.Values)
	if d.ValuesUpdatedAt != nil {
		t := *d.ValuesUpdatedAt
		cpy.ValuesUpdatedAt = &t
	}
	return &cpy
}

// ValueChange describes a capability value that differs from the previous one.
type ValueChange struct {
	DeviceID   string
	Driver     Driver
	Capability Capability
	Value      any
	Previous   any
	ChangedAt  time.Time
}

// ValueChangeFunc observes capability value changes. It is called
// synchronously from SetCapabilityValue and must not block.
type ValueChangeFunc func(ValueChange)

// CapabilityListener handles a user-initiated capability change. Returning an
// error rejects the change; the stored value is left untouched.
type CapabilityListener func(ctx context.Context, value any) error
