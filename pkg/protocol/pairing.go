// Package protocol defines the wire format of the remote pairing service.
// This package is importable by the reference service and by clients.
package protocol

// Endpoint paths, relative to the service base URL.
const (
	PathInitialize   = "/pairing/initialize/"
	PathComplete     = "/pairing/complete/"
	PathRefresh      = "/pairing/refresh/"
	PathRemaining    = "/pairing/remaining/"
	PathDeviceToggle = "/pairing/device/toggle/"
	PathLanding      = "/pairing/"
)

// DefaultTTL is the lifetime, in seconds, of a freshly issued pairing token.
const DefaultTTL = 600

// PairObject is the service's grant: a token and its remaining lifetime in seconds.
type PairObject struct {
	Token string `json:"token"`
	TTL   int    `json:"ttl"`
}

// Device describes one participant of a pairing.
type Device struct {
	DeviceID  string `json:"deviceId"`
	Available bool   `json:"available"`
}

// InitializeRequest opens a new pairing for a device.
type InitializeRequest struct {
	DeviceID string `json:"deviceId"`
}

// CompleteRequest is sent by the scanning side to join a pairing.
type CompleteRequest struct {
	Token  string `json:"token"`
	Device Device `json:"device"`
}

// RefreshRequest renews a pairing. Both deviceId and device are sent;
// older services read one or the other.
type RefreshRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
	Device   Device `json:"device"`
}

// ToggleRequest removes a device from the pairings it belongs to.
type ToggleRequest struct {
	DeviceID string `json:"deviceId"`
}

// ErrorBody is returned with every non-success response.
type ErrorBody struct {
	Reason string `json:"reason"`
}
