package iotf

import (
	"fmt"
	"log/slog"
)

type (
	// Error is the structured failure returned by every client operation.
	//
	// Only the fields relevant to the Kind are populated. Use errors.Is with
	// the sentinel values below to test the kind, or errors.As to read the
	// structured fields.
	Error struct {
		Kind Kind

		// Reason is a free-form description (configuration problems,
		// invalid events, API messages, low-level connect failures).
		Reason string

		// Address is the broker address for connection failures.
		Address string

		// Method is the rejected authentication method.
		Method string

		// Format is the message format for codec failures.
		Format string

		// HTTPStatusCode and Response are set for API failures.
		HTTPStatusCode int
		Response       []byte

		NestedError error
	}

	// Kind identifies the failure category of an Error.
	Kind int
)

// The defined error kinds.
const (
	ConnectionFailure Kind = iota
	ConnectionTimeout
	ConfigurationInvalid
	UnsupportedAuthMethod
	InvalidEvent
	MissingDecoder
	MissingEncoder
	APIFailure
)

// Sentinels for errors.Is. A ConnectionTimeout error also matches
// ErrConnectionFailed.
var (
	ErrConnectionFailed      = &Error{Kind: ConnectionFailure}
	ErrConnectionTimeout     = &Error{Kind: ConnectionTimeout}
	ErrConfiguration         = &Error{Kind: ConfigurationInvalid}
	ErrUnsupportedAuthMethod = &Error{Kind: UnsupportedAuthMethod}
	ErrInvalidEvent          = &Error{Kind: InvalidEvent}
	ErrMissingDecoder        = &Error{Kind: MissingDecoder}
	ErrMissingEncoder        = &Error{Kind: MissingEncoder}
	ErrAPI                   = &Error{Kind: APIFailure}
)

var kindNames = map[Kind]string{
	ConnectionFailure:     "connection_failure",
	ConnectionTimeout:     "connection_timeout",
	ConfigurationInvalid:  "configuration_invalid",
	UnsupportedAuthMethod: "unsupported_auth_method",
	InvalidEvent:          "invalid_event",
	MissingDecoder:        "missing_decoder",
	MissingEncoder:        "missing_encoder",
	APIFailure:            "api_failure",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error returns the error as a string.
func (e *Error) Error() string {
	switch e.Kind {
	case ConnectionFailure:
		if e.Reason != "" {
			return fmt.Sprintf("Failed to connect to IBM Watson IoT Platform: %s - %s", e.Address, e.Reason)
		}
		return fmt.Sprintf("Failed to connect to IBM Watson IoT Platform: %s", e.Address)
	case ConnectionTimeout:
		return fmt.Sprintf("Operation timed out connecting to IBM Watson IoT Platform: %s", e.Address)
	case ConfigurationInvalid:
		return e.Reason
	case UnsupportedAuthMethod:
		return fmt.Sprintf("Unsupported authentication method: %s", e.Method)
	case InvalidEvent:
		return fmt.Sprintf("Invalid Event: %s", e.Reason)
	case MissingDecoder:
		return fmt.Sprintf("No message decoder defined for message format: %s", e.Format)
	case MissingEncoder:
		return fmt.Sprintf("No message encoder defined for message format: %s", e.Format)
	case APIFailure:
		return fmt.Sprintf("[%d] %s", e.HTTPStatusCode, e.Reason)
	default:
		return e.Reason
	}
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// Is matches another *Error by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == ConnectionTimeout && t.Kind == ConnectionFailure
}

// Attrs returns the populated fields as slog attributes.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 4)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.NestedError != nil {
		a = append(a, slog.Any("nested_error", e.NestedError))
	}

	switch e.Kind {
	case ConnectionFailure, ConnectionTimeout:
		a = append(a, slog.String("address", e.Address))
	case UnsupportedAuthMethod:
		a = append(a, slog.String("method", e.Method))
	case InvalidEvent, MissingDecoder, MissingEncoder:
		if e.Format != "" {
			a = append(a, slog.String("format", e.Format))
		}
	case APIFailure:
		a = append(a,
			slog.Int("http_status_code", e.HTTPStatusCode),
			slog.Int("response_bytes", len(e.Response)),
		)
	}

	return a
}

// LogValue groups the attributes when an Error is logged as a value.
func (e *Error) LogValue() slog.Value {
	attrs := append(e.Attrs(), slog.String("message", e.Error()))
	return slog.GroupValue(attrs...)
}
