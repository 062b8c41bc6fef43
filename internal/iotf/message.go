package iotf

import "time"

// Message is the envelope exchanged with codecs.
//
// Data is whatever the codec understands (a map for JSON, raw bytes for
// "bin", a string for "text"). A zero Timestamp means the message carries
// no timestamp.
type Message struct {
	Data      any
	Timestamp time.Time
}

// NewMessage returns a Message stamped with the current UTC time.
func NewMessage(data any) Message {
	return Message{Data: data, Timestamp: time.Now().UTC()}
}

// HasTimestamp reports whether the message carries a timestamp.
func (m Message) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}
