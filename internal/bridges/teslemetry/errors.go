package teslemetry

import "errors"

// Domain errors for the Teslemetry bridge package.
var (
	// ErrSiteNotFound is returned by EnergySiteController.Init when the
	// product catalog has no energy site for the device.
	ErrSiteNotFound = errors.New("teslemetry: energy site not found")

	// ErrVehicleListFailed is the user-facing error returned when the
	// vehicle inventory cannot be loaded. The underlying cause is logged,
	// never returned.
	ErrVehicleListFailed = errors.New("Failed to load vehicles from Teslemetry. Please check your connection and try again.") //nolint:staticcheck // shown verbatim to users

	// ErrVehicleNotPairable is returned when pairing a VIN that is absent
	// from the account or lacks fleet telemetry support.
	ErrVehicleNotPairable = errors.New("teslemetry: vehicle not available for pairing")

	// ErrUnknownAction is returned for unsupported request actions.
	ErrUnknownAction = errors.New("teslemetry: unknown request action")

	// ErrBridgeStopping is returned for messages that arrive after Stop.
	ErrBridgeStopping = errors.New("teslemetry: bridge is stopping")
)

// Logger defines the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
