package device

import (
	"fmt"
	"math"
	"slices"
)

// Capability is a named, typed attribute of a device (e.g. "measure_battery").
// Sub-capabilities use a dotted suffix ("measure_power.solar").
type Capability string

// Energy site capabilities.
const (
	CapMeasureBattery           Capability = "measure_battery"
	CapMeasureEnergyLeft        Capability = "measure_energy_left"
	CapMeasurePower             Capability = "measure_power"
	CapMeasurePowerSolar        Capability = "measure_power.solar"
	CapMeasurePowerGrid         Capability = "measure_power.grid"
	CapMeasureLoadPower         Capability = "measure_load_power"
	CapMeasureHomeUsage         Capability = "measure_home_usage"
	CapMeasureGridExported      Capability = "measure_grid_exported"
	CapMeasureGeneratorExported Capability = "measure_generator_exported"
	CapMeasureIslandStatus      Capability = "measure_island_status"
	CapMeasureVPPBackupReserve  Capability = "measure_vpp_backup_reserve"
	CapStormWatchActive         Capability = "storm_watch_active"
	CapGridStatus               Capability = "grid_status"
	CapGridServicesEnabled      Capability = "grid_services_enabled"

	CapBackupReserve  Capability = "backup_reserve"
	CapOffGridReserve Capability = "off_grid_reserve"
	CapOperationMode  Capability = "operation_mode"
	CapAllowExport    Capability = "allow_export"
	CapChargeFromGrid Capability = "charge_from_grid"
	CapStormWatch     Capability = "storm_watch"
)

// ValueType is the JSON type a capability value must have.
type ValueType string

// Value types.
const (
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeString  ValueType = "string"
	TypeEnum    ValueType = "enum"
)

// CapabilityInfo describes how a capability's values are typed and whether
// users may set it.
type CapabilityInfo struct {
	Type    ValueType `json:"type"`
	Units   string    `json:"units,omitempty"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
	Values  []string  `json:"values,omitempty"`
	Setable bool      `json:"setable"`
}

func bound(v float64) *float64 { return &v }

var percent = CapabilityInfo{Type: TypeNumber, Units: "%", Min: bound(0), Max: bound(100)}

var watts = CapabilityInfo{Type: TypeNumber, Units: "W"}

func setable(info CapabilityInfo) CapabilityInfo {
	info.Setable = true
	return info
}

// Operation modes accepted by energy sites.
const (
	OperationModeSelfConsumption = "self_consumption"
	OperationModeBackup          = "backup"
	OperationModeAutonomous      = "autonomous"
)

// Export rules accepted by energy sites.
const (
	ExportRuleNever     = "never"
	ExportRuleBatteryOK = "battery_ok"
	ExportRulePVOnly    = "pv_only"
)

var catalog = map[Capability]CapabilityInfo{
	CapMeasureBattery:           percent,
	CapMeasureEnergyLeft:        {Type: TypeNumber, Units: "Wh"},
	CapMeasurePower:             watts,
	CapMeasurePowerSolar:        watts,
	CapMeasurePowerGrid:         watts,
	CapMeasureLoadPower:         watts,
	CapMeasureHomeUsage:         watts,
	CapMeasureGridExported:      watts,
	CapMeasureGeneratorExported: watts,
	CapMeasureIslandStatus:      {Type: TypeString},
	CapMeasureVPPBackupReserve:  percent,
	CapStormWatchActive:         {Type: TypeBoolean},
	CapGridStatus:               {Type: TypeBoolean},
	CapGridServicesEnabled:      {Type: TypeBoolean},

	CapBackupReserve:  setable(percent),
	CapOffGridReserve: setable(percent),
	CapOperationMode: {
		Type:    TypeEnum,
		Values:  []string{OperationModeSelfConsumption, OperationModeBackup, OperationModeAutonomous},
		Setable: true,
	},
	CapAllowExport: {
		Type:    TypeEnum,
		Values:  []string{ExportRuleNever, ExportRuleBatteryOK, ExportRulePVOnly},
		Setable: true,
	},
	CapChargeFromGrid: {Type: TypeBoolean, Setable: true},
	CapStormWatch:     {Type: TypeBoolean, Setable: true},
}

// LookupCapability returns the metadata for c.
func LookupCapability(c Capability) (CapabilityInfo, bool) {
	info, ok := catalog[c]
	return info, ok
}

// AllCapabilities returns every known capability in sorted order.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(catalog))
	for c := range catalog {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	return caps
}

// NormaliseValue checks v against the capability's type and returns it in
// canonical form: all numbers become float64. nil is always accepted and
// means "unknown".
func NormaliseValue(c Capability, v any) (any, error) {
	info, ok := catalog[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCapability, c)
	}
	if v == nil {
		return nil, nil
	}

	switch info.Type {
	case TypeNumber:
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s expects a number, got %T", ErrInvalidValue, c, v)
		}
		if info.Setable && info.Min != nil && f < *info.Min {
			return nil, fmt.Errorf("%w: %s must be >= %g", ErrInvalidValue, c, *info.Min)
		}
		if info.Setable && info.Max != nil && f > *info.Max {
			return nil, fmt.Errorf("%w: %s must be <= %g", ErrInvalidValue, c, *info.Max)
		}
		return f, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a boolean, got %T", ErrInvalidValue, c, v)
		}
		return b, nil
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidValue, c, v)
		}
		return s, nil
	case TypeEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(info.Values, s) {
			return nil, fmt.Errorf("%w: %s must be one of %v", ErrInvalidValue, c, info.Values)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidCapability, c, info.Type)
	}
}

// NumericValue converts a stored value to float64 for metrics and history.
// Booleans map to 0 or 1; strings and nil are not numeric.
func NumericValue(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
