package teslemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

type fakeProducts struct {
	products *tslm.Products
	err      error
}

func (f fakeProducts) Products(context.Context) (*tslm.Products, error) {
	return f.products, f.err
}

func vehicle(vin, name string, telemetry bool) tslm.Vehicle {
	return tslm.Vehicle{
		VIN:      vin,
		Name:     name,
		Metadata: tslm.VehicleMetadata{FleetTelemetry: tslm.Truthy(telemetry)},
	}
}

func TestListPairingDevices(t *testing.T) {
	products := &tslm.Products{Vehicles: map[string]tslm.Vehicle{
		"5YJ3E1EA7KF000001": vehicle("5YJ3E1EA7KF000001", "Zed", true),
		"7SAYGDEE5PA000002": vehicle("7SAYGDEE5PA000002", "Alpha", true),
		"5YJSA1E26MF000003": vehicle("5YJSA1E26MF000003", "Legacy", false),
		"XP7ZZZZZZZZ000004": vehicle("XP7ZZZZZZZZ000004", "Alpha", true),
	}}
	d := NewVehicleDriver(fakeProducts{products: products}, nil)

	got, err := d.ListPairingDevices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []PairingDevice{
		{Name: "Alpha", Data: PairingData{VIN: "7SAYGDEE5PA000002"}, Icon: "modelY.svg"},
		{Name: "Alpha", Data: PairingData{VIN: "XP7ZZZZZZZZ000004"}},
		{Name: "Zed", Data: PairingData{VIN: "5YJ3E1EA7KF000001"}, Icon: "model3.svg"},
	}, got)
}

func TestListPairingDevices_Empty(t *testing.T) {
	for name, products := range map[string]*tslm.Products{
		"not loaded":  nil,
		"no vehicles": {Vehicles: map[string]tslm.Vehicle{}},
	} {
		t.Run(name, func(t *testing.T) {
			d := NewVehicleDriver(fakeProducts{products: products}, nil)
			got, err := d.ListPairingDevices(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestListPairingDevices_FetchError(t *testing.T) {
	d := NewVehicleDriver(fakeProducts{err: errors.New("dial tcp: connection refused")}, nil)

	got, err := d.ListPairingDevices(context.Background())
	assert.Nil(t, got)
	require.ErrorIs(t, err, ErrVehicleListFailed)
	assert.EqualError(t, err, "Failed to load vehicles from Teslemetry. Please check your connection and try again.")
}

func TestVehicleIcon(t *testing.T) {
	tests := map[string]string{
		"5YJ3E1EA7KF000001": "model3.svg",
		"7SAYGDEE5PA000002": "modelY.svg",
		"5YJSA1E26MF000003": "modelS.svg",
		"5YJXCAE26MF000004": "modelX.svg",
		"7G2CEHED1RA000005": "cybertruck.svg",
		"5YJQ":              "",
		"5YJ":               "",
		"":                  "",
	}
	for vin, want := range tests {
		assert.Equal(t, want, VehicleIcon(vin), vin)
	}
}
