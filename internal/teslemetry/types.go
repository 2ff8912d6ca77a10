package teslemetry

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// LiveStatus is the fast-changing telemetry of an energy site.
// Every field is optional; nil means the site did not report it.
// Power values are in watts, energy in watt-hours.
type LiveStatus struct {
	PercentageCharged *float64 `json:"percentage_charged"`
	EnergyLeft        *float64 `json:"energy_left"`
	TotalPackEnergy   *float64 `json:"total_pack_energy"`
	SolarPower        *float64 `json:"solar_power"`
	BatteryPower      *float64 `json:"battery_power"`
	LoadPower         *float64 `json:"load_power"`
	GridPower         *float64 `json:"grid_power"`
	GeneratorPower    *float64 `json:"generator_power"`
	GridServicesPower *float64 `json:"grid_services_power"`
	IslandStatus      *string  `json:"island_status"`
	GridStatus        *string  `json:"grid_status"`
	StormModeActive   *bool    `json:"storm_mode_active"`
	BackupCapable     *bool    `json:"backup_capable"`
	Timestamp         *string  `json:"timestamp"`
}

// SiteInfo is the slow-changing configuration of an energy site.
type SiteInfo struct {
	ID                                   string       `json:"id"`
	SiteName                             string       `json:"site_name"`
	BackupReservePercent                 *float64     `json:"backup_reserve_percent"`
	DefaultRealMode                      *string      `json:"default_real_mode"`
	OffGridVehicleChargingReservePercent *float64     `json:"off_grid_vehicle_charging_reserve_percent"`
	VPPBackupReservePercent              *float64     `json:"vpp_backup_reserve_percent"`
	InstallationDate                     string       `json:"installation_date,omitempty"`
	Version                              string       `json:"version,omitempty"`
	BatteryCount                         int          `json:"battery_count,omitempty"`
	NameplatePower                       float64      `json:"nameplate_power,omitempty"`
	NameplateEnergy                      float64      `json:"nameplate_energy,omitempty"`
	Components                           Components   `json:"components"`
	UserSettings                         UserSettings `json:"user_settings"`
}

// Components describes the hardware and grid agreements of a site.
type Components struct {
	Battery                                  bool   `json:"battery"`
	BatteryType                              string `json:"battery_type,omitempty"`
	Solar                                    bool   `json:"solar"`
	SolarType                                string `json:"solar_type,omitempty"`
	Grid                                     bool   `json:"grid"`
	LoadMeter                                bool   `json:"load_meter"`
	Generator                                bool   `json:"generator"`
	Backup                                   bool   `json:"backup"`
	StormModeCapable                         bool   `json:"storm_mode_capable"`
	OffGridVehicleChargingReserveSupported   bool   `json:"off_grid_vehicle_charging_reserve_supported"`
	GridServicesEnabled                      *bool  `json:"grid_services_enabled"`
	CustomerPreferredExportRule              string `json:"customer_preferred_export_rule,omitempty"`
	NonExportConfigured                      bool   `json:"non_export_configured"`
	DisallowChargeFromGridWithSolarInstalled bool   `json:"disallow_charge_from_grid_with_solar_installed"`
}

// UserSettings holds owner preferences stored on the site.
type UserSettings struct {
	StormModeEnabled *bool `json:"storm_mode_enabled"`
}

// Vehicle is a vehicle in the account's product list.
type Vehicle struct {
	ID       int64           `json:"id"`
	VIN      string          `json:"vin"`
	Name     string          `json:"display_name"`
	State    string          `json:"state,omitempty"`
	Metadata VehicleMetadata `json:"metadata"`
}

// VehicleMetadata is the Teslemetry-side information about a vehicle.
type VehicleMetadata struct {
	Access         bool   `json:"access"`
	Polling        bool   `json:"polling"`
	Proxy          bool   `json:"proxy"`
	Firmware       string `json:"firmware,omitempty"`
	FleetTelemetry Truthy `json:"fleet_telemetry"`
}

// Metadata is the account metadata returned by /api/1/metadata.
type Metadata struct {
	UID      string                     `json:"uid"`
	Region   string                     `json:"region"`
	Scopes   []string                   `json:"scopes"`
	Vehicles map[string]VehicleMetadata `json:"vehicles"`
}

// CommandResult is the body returned by energy site setters.
type CommandResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Truthy decodes any JSON scalar into a boolean the way loosely typed
// clients do: false, null, "", and 0 are false; anything else is true.
// The fleet_telemetry field is a version string on some accounts and a
// boolean on others.
type Truthy bool

// UnmarshalJSON implements json.Unmarshaler.
func (t *Truthy) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*t = false
	case bytes.Equal(data, []byte("true")):
		*t = true
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = s != ""
	case data[0] == '{' || data[0] == '[':
		*t = true
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return err
		}
		*t = f != 0
	}
	return nil
}
