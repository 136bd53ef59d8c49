package protocol

import "errors"

// Errors returned by the payload accessors and prefix validation.
var (
	// ErrInvalidPrefix is returned when a topic prefix is empty, contains
	// MQTT wildcards, or starts or ends with a separator.
	ErrInvalidPrefix = errors.New("protocol: invalid topic prefix")

	// ErrPayloadFormat is returned when a payload cannot be read as the
	// requested type.
	ErrPayloadFormat = errors.New("protocol: payload has unexpected format")
)
