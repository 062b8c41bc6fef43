package codecs

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Text carries UTF-8 strings.
type Text struct {
	Now func() time.Time
}

// Encode accepts string, []byte or fmt.Stringer data.
func (Text) Encode(msg iotf.Message) ([]byte, error) {
	var b []byte
	switch d := msg.Data.(type) {
	case string:
		b = []byte(d)
	case []byte:
		b = d
	case fmt.Stringer:
		b = []byte(d.String())
	default:
		return nil, invalidEvent(FormatText, fmt.Sprintf("text format cannot encode %T", msg.Data), nil)
	}
	if !utf8.Valid(b) {
		return nil, invalidEvent(FormatText, "text payload is not valid UTF-8", nil)
	}
	return b, nil
}

// Decode returns the payload as a string.
func (c Text) Decode(payload []byte) (iotf.Message, error) {
	if !utf8.Valid(payload) {
		return iotf.Message{}, invalidEvent(FormatText, "text payload is not valid UTF-8", nil)
	}
	return iotf.Message{Data: string(payload), Timestamp: received(c.Now)}, nil
}

// Binary carries opaque bytes.
type Binary struct {
	Now func() time.Time
}

// Encode accepts []byte or string data.
func (Binary) Encode(msg iotf.Message) ([]byte, error) {
	switch d := msg.Data.(type) {
	case []byte:
		return d, nil
	case string:
		return []byte(d), nil
	default:
		return nil, invalidEvent(FormatBinary, fmt.Sprintf("bin format cannot encode %T", msg.Data), nil)
	}
}

// Decode returns a copy of payload.
func (c Binary) Decode(payload []byte) (iotf.Message, error) {
	data := make([]byte, len(payload))
	copy(data, payload)
	return iotf.Message{Data: data, Timestamp: received(c.Now)}, nil
}
