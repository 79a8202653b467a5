package site

import (
	"errors"
	"fmt"
)

// Domain errors for the site package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, site.ErrRoomNotConfigured) {
//	    // tell the user which room is unknown
//	}
var (
	// ErrRoomNotConfigured is returned when a room slot names no known site.
	ErrRoomNotConfigured = errors.New("site: room not configured")

	// ErrUnknownDevice is returned when a name or address matches no available device.
	ErrUnknownDevice = errors.New("site: unknown device")

	// ErrSiteNotFound is returned when a site has never reported any state.
	ErrSiteNotFound = errors.New("site: not found")
)

// RoomNotConfiguredError names the room that could not be resolved.
// It matches ErrRoomNotConfigured with errors.Is.
type RoomNotConfiguredError struct {
	Room string
}

func (e *RoomNotConfiguredError) Error() string {
	return fmt.Sprintf("site: room %q not configured", e.Room)
}

func (e *RoomNotConfiguredError) Unwrap() error {
	return ErrRoomNotConfigured
}
