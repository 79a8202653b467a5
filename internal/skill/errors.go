package skill

import "errors"

// Domain errors for the skill package.
var (
	// ErrCommandFailed marks a command the satellite reported as failed, or
	// one that could not be published. It is recorded, never returned to
	// the user.
	ErrCommandFailed = errors.New("skill: command failed")

	// ErrMalformedSlotData is returned by ExtractSlots when the slot list
	// cannot be decoded. The intent then proceeds with no slots.
	ErrMalformedSlotData = errors.New("skill: malformed slot data")

	// ErrMalformedIntent is returned when an intent payload has no usable
	// session or site.
	ErrMalformedIntent = errors.New("skill: malformed intent")
)
