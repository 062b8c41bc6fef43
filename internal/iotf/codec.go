package iotf

import (
	"sort"
	"sync"
)

// Encoder turns a Message into wire bytes for one format.
type Encoder interface {
	Encode(msg Message) ([]byte, error)
}

// Decoder turns wire bytes of one format into a Message.
type Decoder interface {
	Decode(payload []byte) (Message, error)
}

// Codec is a module that can do both directions.
type Codec interface {
	Encoder
	Decoder
}

// CodecRegistry maps format names to codec modules.
//
// Modules are stored as given; whether a module can encode or decode is
// only checked when it is looked up for that direction.
//
// Thread Safety:
//   - All methods are safe for concurrent use, so formats can be registered
//     while a client is connected.
type CodecRegistry struct {
	mu      sync.RWMutex
	modules map[string]any
}

// NewCodecRegistry returns an empty registry.
func NewCodecRegistry() *CodecRegistry {
	return &CodecRegistry{modules: make(map[string]any)}
}

// Set stores module under format, replacing any previous module.
func (r *CodecRegistry) Set(format string, module any) {
	r.mu.Lock()
	r.modules[format] = module
	r.mu.Unlock()
}

// Get returns the module registered for format.
func (r *CodecRegistry) Get(format string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[format]
	return m, ok
}

// Encoder returns the encoder for format, or a MissingEncoder error when
// no module is registered or the module cannot encode.
func (r *CodecRegistry) Encoder(format string) (Encoder, error) {
	m, _ := r.Get(format)
	enc, ok := m.(Encoder)
	if !ok {
		return nil, &Error{Kind: MissingEncoder, Format: format}
	}
	return enc, nil
}

// Decoder returns the decoder for format, or a MissingDecoder error when
// no module is registered or the module cannot decode.
func (r *CodecRegistry) Decoder(format string) (Decoder, error) {
	m, _ := r.Get(format)
	dec, ok := m.(Decoder)
	if !ok {
		return nil, &Error{Kind: MissingDecoder, Format: format}
	}
	return dec, nil
}

// Encode looks up the encoder for format and encodes msg with it.
func (r *CodecRegistry) Encode(format string, msg Message) ([]byte, error) {
	enc, err := r.Encoder(format)
	if err != nil {
		return nil, err
	}
	return enc.Encode(msg)
}

// Decode looks up the decoder for format and decodes payload with it.
func (r *CodecRegistry) Decode(format string, payload []byte) (Message, error) {
	dec, err := r.Decoder(format)
	if err != nil {
		return Message{}, err
	}
	return dec.Decode(payload)
}

// Formats returns the registered format names in sorted order.
func (r *CodecRegistry) Formats() []string {
	r.mu.RLock()
	formats := make([]string, 0, len(r.modules))
	for f := range r.modules {
		formats = append(formats, f)
	}
	r.mu.RUnlock()

	sort.Strings(formats)
	return formats
}
