package teslemetry

import (
	"slices"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// CapabilitySet is the class and capability list an energy site should have.
type CapabilitySet struct {
	Class        device.Class
	Capabilities []device.Capability
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c device.Capability) bool {
	return slices.Contains(s.Capabilities, c)
}

// ResolveCapabilities derives the capability set implied by a site
// configuration. It is a pure function: the same snapshot always yields the
// same set in the same order. A nil snapshot yields the base set.
func ResolveCapabilities(info *tslm.SiteInfo) CapabilitySet {
	caps := []device.Capability{
		device.CapMeasureLoadPower,
		device.CapMeasureHomeUsage,
		device.CapMeasureIslandStatus,
		device.CapOperationMode,
	}
	if info == nil {
		return CapabilitySet{Class: device.ClassOther, Capabilities: caps}
	}

	c := info.Components
	if c.Battery {
		caps = append(caps,
			device.CapMeasureBattery,
			device.CapMeasureEnergyLeft,
			device.CapMeasurePower,
			device.CapBackupReserve,
		)
	}
	if c.Solar {
		caps = append(caps, device.CapMeasurePowerSolar)
	}
	if c.Grid {
		caps = append(caps,
			device.CapMeasurePowerGrid,
			device.CapMeasureGridExported,
			device.CapGridStatus,
			device.CapAllowExport,
			device.CapChargeFromGrid,
			device.CapGridServicesEnabled,
		)
	}
	if c.Generator {
		caps = append(caps, device.CapMeasureGeneratorExported)
	}
	if c.StormModeCapable {
		caps = append(caps, device.CapStormWatch, device.CapStormWatchActive)
	}
	if c.OffGridVehicleChargingReserveSupported {
		caps = append(caps, device.CapOffGridReserve)
	}
	if info.VPPBackupReservePercent != nil {
		caps = append(caps, device.CapMeasureVPPBackupReserve)
	}

	class := device.ClassOther
	switch {
	case c.Battery:
		class = device.ClassBattery
	case c.Solar:
		class = device.ClassSolarPanel
	}

	return CapabilitySet{Class: class, Capabilities: caps}
}
