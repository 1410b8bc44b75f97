package telemetry

import "errors"

var (
	// ErrMalformedTopic indicates a message arrived on a topic that does
	// not match the sensor reading pattern.
	ErrMalformedTopic = errors.New("telemetry: malformed sensor topic")

	// ErrMalformedReading indicates an unparseable or empty payload.
	ErrMalformedReading = errors.New("telemetry: malformed sensor reading")
)
