package teslemetry

import (
	"context"
	"sort"

	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// vehicleIcons maps the model character of a VIN (index 3) to an icon.
var vehicleIcons = map[byte]string{
	'3': "model3.svg",
	'Y': "modelY.svg",
	'S': "modelS.svg",
	'X': "modelX.svg",
	'C': "cybertruck.svg",
}

// vinModelIndex is the VIN position that encodes the model line.
const vinModelIndex = 3

// ProductSource returns the account's product inventory.
// It is satisfied by *teslemetry.Catalog.
type ProductSource interface {
	Products(ctx context.Context) (*tslm.Products, error)
}

// PairingDevice is a vehicle offered for pairing.
type PairingDevice struct {
	Name string      `json:"name"`
	Data PairingData `json:"data"`

	// Icon is empty when the model is not recognised; the wizard default applies.
	Icon string `json:"icon,omitempty"`
}

// PairingData is the stable pairing key of a vehicle.
type PairingData struct {
	VIN string `json:"vin"`
}

// VehicleDriver lists vehicles that can be paired.
type VehicleDriver struct {
	products ProductSource
	logger   Logger
}

// NewVehicleDriver creates a vehicle driver backed by products.
func NewVehicleDriver(products ProductSource, logger Logger) *VehicleDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &VehicleDriver{products: products, logger: logger}
}

// ListPairingDevices returns the vehicles that support fleet telemetry,
// ordered by name then VIN.
//
// An account without vehicles yields an empty list, not an error. If the
// inventory cannot be fetched the cause is logged and ErrVehicleListFailed
// is returned in its place.
func (d *VehicleDriver) ListPairingDevices(ctx context.Context) ([]PairingDevice, error) {
	d.logger.Info("listing vehicles for pairing")

	products, err := d.products.Products(ctx)
	if err != nil {
		d.logger.Error("failed to list vehicles", "error", err)
		return nil, ErrVehicleListFailed
	}

	devices := []PairingDevice{}
	if products == nil || len(products.Vehicles) == 0 {
		d.logger.Info("no vehicles found or products not loaded")
		return devices, nil
	}

	for _, v := range products.Vehicles {
		if !v.Metadata.FleetTelemetry {
			continue
		}
		devices = append(devices, PairingDevice{
			Name: v.Name,
			Data: PairingData{VIN: v.VIN},
			Icon: VehicleIcon(v.VIN),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].Data.VIN < devices[j].Data.VIN
	})
	return devices, nil
}

// VehicleIcon returns the icon for a VIN, or "" when the model character
// is missing or unrecognised.
func VehicleIcon(vin string) string {
	if len(vin) <= vinModelIndex {
		return ""
	}
	return vehicleIcons[vin[vinModelIndex]]
}
