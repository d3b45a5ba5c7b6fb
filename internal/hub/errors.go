package hub

import "errors"

// Domain errors for the hub package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, hub.ErrHubNotFound) {
//	    // handle not found case
//	}
var (
	// ErrHubExists is returned when adding a hub whose id already exists.
	ErrHubExists = errors.New("hub: already exists")

	// ErrHubNotFound is returned when a hub id does not exist.
	ErrHubNotFound = errors.New("hub: not found")

	// ErrDeviceNotFound is returned when no Connection owns a device id.
	ErrDeviceNotFound = errors.New("hub: device not found")

	// ErrNotConnected is returned when a command requires a connected hub.
	ErrNotConnected = errors.New("hub: not connected")

	// ErrInvalidState is returned when an operation is not permitted in the
	// Connection's current state.
	ErrInvalidState = errors.New("hub: invalid state for operation")

	// ErrPermissionDenied is returned when the hub did not grant the
	// permission an operation requires.
	ErrPermissionDenied = errors.New("hub: permission not granted")

	// ErrUnknownCategory is returned when a device category is not part of
	// the closed variant set.
	ErrUnknownCategory = errors.New("hub: unknown device category")

	// ErrManagerClosed is returned when operating on a closed Manager.
	ErrManagerClosed = errors.New("hub: manager closed")
)
