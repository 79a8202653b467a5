package protocol

import "errors"

var (
	// ErrMalformedMessage is returned when a payload is not valid JSON for
	// its topic.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("protocol: missing field")
)
