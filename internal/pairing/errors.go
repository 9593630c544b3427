package pairing

import "errors"

var (
	// ErrNoToken is returned by Complete when no token was given and none is persisted.
	ErrNoToken = errors.New("no pairing token available")

	// ErrSessionLost wraps a refresh failure; the session has been discarded
	// and the caller must initiate again.
	ErrSessionLost = errors.New("pairing session lost")

	// ErrSuperseded is returned when a response arrives after availability was
	// switched off (or the controller closed) and is therefore not applied.
	ErrSuperseded = errors.New("pairing result superseded")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("pairing controller closed")
)
