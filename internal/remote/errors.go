package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError means the request could not be sent or no usable response came back.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pairing %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError means the service answered with a non-success status.
type RejectedError struct {
	Op     string
	Status int
	Reason string // from the JSON error body, may be empty
}

func (e *RejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("pairing %s: rejected (%d %s): %s", e.Op, e.Status, http.StatusText(e.Status), e.Reason)
	}
	return fmt.Sprintf("pairing %s: rejected (%d %s)", e.Op, e.Status, http.StatusText(e.Status))
}

// IsRejected reports whether err is a RejectedError and returns its status.
func IsRejected(err error) (int, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Status, true
	}
	return 0, false
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
