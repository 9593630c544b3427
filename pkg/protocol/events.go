package protocol

// Pairing lifecycle event names delivered to controller observers.
const (
	EventPairingInitiated    = "pairing.initiated"
	EventPairingCompleted    = "pairing.completed"
	EventPairingRefreshed    = "pairing.refreshed"
	EventPairingResumed      = "pairing.resumed"
	EventPairingExpired      = "pairing.expired"
	EventPairingLost         = "pairing.lost"
	EventAvailabilityChanged = "pairing.availability"
	EventControllerClosed    = "pairing.closed"
)
