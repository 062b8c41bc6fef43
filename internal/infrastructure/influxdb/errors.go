package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: statistics export disabled")

	// ErrUnreachable means the server did not answer its ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrExportFailed wraps asynchronous write failures. They are logged,
	// never returned, because RecordClientStats does not block.
	ErrExportFailed = errors.New("influxdb: statistics export failed")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: exporter closed")
)
