package influxdb

import "errors"

// Errors reported by the telemetry client, matched with errors.Is.
// Write failures never appear here; batched writes report through the
// SetOnError callback instead.
var (
	// ErrDisabled means config.yaml switched the integration off.
	ErrDisabled = errors.New("influxdb: disabled")

	// ErrConnectionFailed wraps a failed connection ping during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned from calls made after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
