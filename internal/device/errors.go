package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrCapabilityNotFound) {
//	    // capability not declared on this device
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or pairing
	// key is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDriver is returned when a driver value is not recognised.
	ErrInvalidDriver = errors.New("device: invalid driver")

	// ErrInvalidClass is returned when a class value is not recognised.
	ErrInvalidClass = errors.New("device: invalid class")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidCapability is returned when a capability is not recognised.
	ErrInvalidCapability = errors.New("device: invalid capability")

	// ErrCapabilityNotFound is returned when reading or writing a capability
	// the device does not currently declare.
	ErrCapabilityNotFound = errors.New("device: capability not found")

	// ErrInvalidValue is returned when a value does not match the capability type.
	ErrInvalidValue = errors.New("device: invalid capability value")

	// ErrNotSetable is returned when a user tries to change a read-only capability.
	ErrNotSetable = errors.New("device: capability is not setable")

	// ErrNoListener is returned when no listener handles a user-initiated change.
	ErrNoListener = errors.New("device: no capability listener registered")
)
