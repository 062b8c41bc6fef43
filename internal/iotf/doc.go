// Package iotf holds the transport-independent core of the Watson IoT
// Platform client.
//
// This package manages:
//   - The message envelope passed to and from codecs
//   - The per-format encoder/decoder registry
//   - The tagged error type shared by every transport
//   - Broker address, TLS version and credential resolution
//
// Transports (MQTT in internal/infrastructure/mqtt, HTTP in
// internal/infrastructure/httpapi) build on these pieces and implement the
// Transport interface so calling code can switch between them.
//
// Usage:
//
//	reg := iotf.NewCodecRegistry()
//	codecs.Register(reg)
//
//	enc, err := reg.Encoder("json")
//	if err != nil {
//	    return err // *iotf.Error with Kind MissingEncoder
//	}
//	payload, err := enc.Encode(iotf.NewMessage(map[string]any{"temp": 21.5}))
package iotf
