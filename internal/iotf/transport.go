package iotf

import "context"

// HealthChecker reports whether a transport, or a collaborator it relies on
// such as the message store or the statistics exporter, is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Transport is the contract shared by the MQTT and HTTP clients.
type Transport interface {
	HealthChecker

	// Connect opens the connection. HTTP treats it as a no-op.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. HTTP treats it as a no-op.
	Disconnect() error

	// MessageEncoderModule returns the encoder for format.
	MessageEncoderModule(format string) (Encoder, error)

	// MessageDecoderModule returns the decoder for format.
	MessageDecoderModule(format string) (Decoder, error)

	// SetMessageEncoderModule registers module for format.
	SetMessageEncoderModule(format string, module any)
}
