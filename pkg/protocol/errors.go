package protocol

// Rejection reasons returned by the pairing service in ErrorBody.Reason.
const (
	ReasonDeviceBusy       = "Device already in another pairing session"
	ReasonTokenNotFound    = "Pairing token not found"
	ReasonNotOpen          = "Pairing not open to join"
	ReasonNotMember        = "Device not part of pairing"
	ReasonDeviceNotFound   = "Device id not found"
	ReasonMissingToken     = "No `token` query parameter found"
	ReasonMissingDeviceID  = "deviceId is required"
	ReasonTokenRequired    = "token is required"
	ReasonMethodNotAllowed = "Method not allowed"
	ReasonRateLimited      = "Too many requests"
	ReasonInvalidDeviceID  = "deviceId must be a UUID"
)
