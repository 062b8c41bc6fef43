package codecs

import (
	stdjson "encoding/json"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/json"
	"github.com/relvacode/iso8601"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// JSON encodes Message.Data as a JSON document.
//
// Decoded messages are stamped with the receive time.
type JSON struct {
	// Now overrides the receive clock. Nil means time.Now in UTC.
	Now func() time.Time
}

// Encode marshals msg.Data.
func (JSON) Encode(msg iotf.Message) ([]byte, error) {
	b, err := encoding.GetCodec(json.Name).Marshal(msg.Data)
	if err != nil {
		return nil, invalidEvent(FormatJSON, fmt.Sprintf("unable to encode JSON: %v", err), err)
	}
	return b, nil
}

// Decode unmarshals payload into generic JSON values.
func (c JSON) Decode(payload []byte) (iotf.Message, error) {
	var data any
	if err := encoding.GetCodec(json.Name).Unmarshal(payload, &data); err != nil {
		return iotf.Message{}, invalidEvent(FormatJSON,
			fmt.Sprintf("unable to parse JSON. payload=%q error=%v", payload, err), err)
	}
	return iotf.Message{Data: data, Timestamp: received(c.Now)}, nil
}

// JSONIoTF is the platform envelope format {"d": data, "ts": timestamp}.
type JSONIoTF struct {
	Now func() time.Time
}

type iotfEnvelope struct {
	D  stdjson.RawMessage `json:"d"`
	TS string             `json:"ts,omitempty"`
}

// Encode wraps msg.Data under "d" and its timestamp under "ts". A message
// without a timestamp is stamped with the current time.
func (c JSONIoTF) Encode(msg iotf.Message) ([]byte, error) {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = received(c.Now)
	}

	codec := encoding.GetCodec(json.Name)
	d, err := codec.Marshal(msg.Data)
	if err != nil {
		return nil, invalidEvent(FormatJSONIoTF, fmt.Sprintf("unable to encode JSON: %v", err), err)
	}

	return codec.Marshal(iotfEnvelope{D: d, TS: ts.UTC().Format(time.RFC3339Nano)})
}

// Decode requires the "d" element. "ts" is optional; when absent the
// receive time is used.
func (c JSONIoTF) Decode(payload []byte) (iotf.Message, error) {
	codec := encoding.GetCodec(json.Name)

	var env iotfEnvelope
	if err := codec.Unmarshal(payload, &env); err != nil {
		return iotf.Message{}, invalidEvent(FormatJSONIoTF,
			fmt.Sprintf("unable to parse JSON. payload=%q error=%v", payload, err), err)
	}
	if len(env.D) == 0 {
		return iotf.Message{}, invalidEvent(FormatJSONIoTF, "missing data element 'd' in payload", nil)
	}

	var data any
	if err := codec.Unmarshal(env.D, &data); err != nil {
		return iotf.Message{}, invalidEvent(FormatJSONIoTF, fmt.Sprintf("unable to parse 'd': %v", err), err)
	}

	msg := iotf.Message{Data: data}
	if env.TS == "" {
		msg.Timestamp = received(c.Now)
		return msg, nil
	}

	ts, err := iso8601.ParseString(env.TS)
	if err != nil {
		return iotf.Message{}, invalidEvent(FormatJSONIoTF, fmt.Sprintf("invalid timestamp %q: %v", env.TS, err), err)
	}
	msg.Timestamp = ts
	return msg, nil
}
