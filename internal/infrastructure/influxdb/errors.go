package influxdb

import "errors"

// Sentinel errors; check with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// History is optional, so callers treat it as "run without history".
	ErrDisabled = errors.New("influxdb: history disabled")

	ErrConnectionFailed = errors.New("influxdb: server unreachable")
	ErrNotConnected     = errors.New("influxdb: client closed or never connected")

	// ErrWriteFailed wraps batch write errors delivered to the
	// SetOnError callback; writes themselves never return errors.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
