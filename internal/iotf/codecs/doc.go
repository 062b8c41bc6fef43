// Package codecs provides the default message formats.
//
// Formats registered by Register:
//   - json: plain JSON document, receive time as timestamp
//   - json-iotf: {"d": <data>, "ts": <ISO-8601>} envelope
//   - xml: XML document decoded into a generic XMLNode tree
//   - text: UTF-8 text
//   - bin: opaque bytes
//
// JSON and XML marshalling go through the kratos encoding registry so the
// same codec engines are shared with anything else in the process that
// uses it.
package codecs
