package codecs

import (
	"time"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Format names.
const (
	FormatJSON     = "json"
	FormatJSONIoTF = "json-iotf"
	FormatXML      = "xml"
	FormatText     = "text"
	FormatBinary   = "bin"
)

// Register installs the default codecs into reg, replacing any module
// already registered under the same names.
func Register(reg *iotf.CodecRegistry) {
	reg.Set(FormatJSON, JSON{})
	reg.Set(FormatJSONIoTF, JSONIoTF{})
	reg.Set(FormatXML, XML{})
	reg.Set(FormatText, Text{})
	reg.Set(FormatBinary, Binary{})
}

// received returns the timestamp for a decoded message that carries none.
func received(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now().UTC()
}

func invalidEvent(format, reason string, err error) error {
	return &iotf.Error{
		Kind:        iotf.InvalidEvent,
		Format:      format,
		Reason:      reason,
		NestedError: err,
	}
}
