package device

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseValue(t *testing.T) {
	tests := []struct {
		name    string
		cap     Capability
		in      any
		want    any
		wantErr error
	}{
		{"int becomes float", CapMeasurePower, 1500, 1500.0, nil},
		{"negative power allowed", CapMeasurePowerGrid, -250.5, -250.5, nil},
		{"nil is unknown", CapMeasureBattery, nil, nil, nil},
		{"NaN rejected", CapMeasurePower, math.NaN(), nil, ErrInvalidValue},
		{"string for number", CapMeasurePower, "12", nil, ErrInvalidValue},
		{"setable percent in range", CapBackupReserve, 20, 20.0, nil},
		{"setable percent above max", CapBackupReserve, 101, nil, ErrInvalidValue},
		{"setable percent below min", CapOffGridReserve, -1, nil, ErrInvalidValue},
		{"boolean", CapStormWatch, true, true, nil},
		{"boolean from number", CapStormWatch, 1, nil, ErrInvalidValue},
		{"enum member", CapAllowExport, ExportRulePVOnly, ExportRulePVOnly, nil},
		{"enum non-member", CapOperationMode, "turbo", nil, ErrInvalidValue},
		{"free string", CapMeasureIslandStatus, "island_status_unknown", "island_status_unknown", nil},
		{"unknown capability", "measure_flux", 1, nil, ErrInvalidCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormaliseValue(tt.cap, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumericValue(t *testing.T) {
	v, ok := NumericValue(true)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = NumericValue(42)
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)

	_, ok = NumericValue("on_grid")
	assert.False(t, ok)
	_, ok = NumericValue(nil)
	assert.False(t, ok)
}

func TestAllCapabilities_SortedAndKnown(t *testing.T) {
	caps := AllCapabilities()
	require.NotEmpty(t, caps)
	assert.True(t, slices.IsSorted(caps))
	for _, c := range caps {
		_, ok := LookupCapability(c)
		assert.True(t, ok, c)
	}
}
