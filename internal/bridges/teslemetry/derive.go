package teslemetry

import (
	"math"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// gridStatusActive is the only grid_status value reported as connected.
// Any other string, including an empty or unknown one, means not connected.
// TODO: decide whether a missing grid_status should leave grid_status
// unchanged instead of reporting disconnected.
const gridStatusActive = "Active"

// ExportedGridPower rectifies signed grid power into export-only watts:
// the magnitude when power flows to the grid (negative), otherwise zero.
func ExportedGridPower(gridPower float64) float64 {
	if gridPower < 0 {
		return math.Abs(gridPower)
	}
	return 0
}

// GridStatusActive reports whether the raw grid status equals "Active".
// A missing status is not active.
func GridStatusActive(status *string) bool {
	return status != nil && *status == gridStatusActive
}

// AllowExportRule collapses the site's export configuration into the
// allow_export capability value: "never" when the customer set an export
// preference or the site is configured for non-export, else "battery_ok".
func AllowExportRule(c tslm.Components) string {
	if c.CustomerPreferredExportRule != "" || c.NonExportConfigured {
		return device.ExportRuleNever
	}
	return device.ExportRuleBatteryOK
}

// ChargeFromGrid is the inverse of the "disallow charge from grid with
// solar installed" flag.
func ChargeFromGrid(c tslm.Components) bool {
	return !c.DisallowChargeFromGridWithSolarInstalled
}
