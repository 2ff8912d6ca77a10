package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxIconLength     = 255
	maxDataKeys       = 10
	maxCapabilities   = 50
	maxStringValueLen = 1024
)

// Pre-computed validation sets for O(1) lookups.
var (
	validDrivers map[Driver]struct{}
	validClasses map[Class]struct{}
)

func init() {
	validDrivers = make(map[Driver]struct{}, len(AllDrivers()))
	for _, d := range AllDrivers() {
		validDrivers[d] = struct{}{}
	}

	validClasses = make(map[Class]struct{}, len(AllClasses()))
	for _, c := range AllClasses() {
		validClasses[c] = struct{}{}
	}
}

// ValidateDevice performs validation on a device before it is persisted.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if err := ValidateDriver(d.Driver); err != nil {
		return err
	}

	if err := ValidateClass(d.Class); err != nil {
		return err
	}

	if len(d.Icon) > maxIconLength {
		return fmt.Errorf("%w: icon exceeds %d characters", ErrInvalidDevice, maxIconLength)
	}

	if err := validateData(d.Driver, d.Data); err != nil {
		return err
	}

	if err := ValidateCapabilities(d.Capabilities); err != nil {
		return err
	}

	for c, v := range d.Values {
		if _, err := NormaliseValue(c, v); err != nil {
			return err
		}
	}

	return nil
}

// validateData checks that the pairing data carries the driver's key.
func validateData(driver Driver, data map[string]string) error {
	if len(data) > maxDataKeys {
		return fmt.Errorf("%w: data exceeds max keys (%d)", ErrInvalidDevice, maxDataKeys)
	}
	for k, v := range data {
		if len(k) > maxStringValueLen || len(v) > maxStringValueLen {
			return fmt.Errorf("%w: data entry %q too long", ErrInvalidDevice, k)
		}
	}

	key := DataKeySiteID
	if driver == DriverVehicle {
		key = DataKeyVIN
	}
	if strings.TrimSpace(data[key]) == "" {
		return fmt.Errorf("%w: data.%s is required for %s devices", ErrInvalidDevice, key, driver)
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateDriver checks if a driver is supported.
func ValidateDriver(driver Driver) error {
	if _, ok := validDrivers[driver]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
}

// ValidateClass checks if a class is supported.
func ValidateClass(class Class) error {
	if _, ok := validClasses[class]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidClass, class)
}

// ValidateCapabilities checks that every capability is known and listed once.
func ValidateCapabilities(caps []Capability) error {
	if len(caps) > maxCapabilities {
		return fmt.Errorf("%w: too many capabilities (max %d)", ErrInvalidCapability, maxCapabilities)
	}
	seen := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		if _, ok := catalog[c]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidCapability, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
