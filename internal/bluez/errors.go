package bluez

import "errors"

// Sentinel errors for adapter operations.
var (
	// ErrAdapterUnavailable is returned when BlueZ or the named adapter is
	// not on the system bus, or the adapter is powered off.
	ErrAdapterUnavailable = errors.New("bluez: adapter unavailable")

	// ErrInvalidAddress is returned for addresses not in XX:XX:XX:XX:XX:XX form.
	ErrInvalidAddress = errors.New("bluez: invalid device address")

	// ErrDeviceNotFound is returned when BlueZ has no object for an address.
	ErrDeviceNotFound = errors.New("bluez: device not found")

	// ErrNotConfirmed is returned when a connect call succeeded but the
	// device never reported itself connected.
	ErrNotConfirmed = errors.New("bluez: device did not confirm connection")
)
