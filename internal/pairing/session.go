package pairing

// Session is the service's current grant: a token and its lifetime in seconds.
// Only the token is persisted; the TTL is refetched on demand.
type Session struct {
	Token string `json:"token"`
	TTL   int    `json:"ttl"`
}

// State is the lifecycle state of the local pairing.
type State uint8

const (
	// StateUnpaired means there is no current session.
	StateUnpaired State = iota

	// StatePending means this device initiated a pairing and is showing its code.
	StatePending

	// StatePaired means the session came from completing or renewing a pairing.
	StatePaired

	// StateExpiring means the renewal timer fired and the expiry action is running.
	StateExpiring
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnpaired:
		return "UNPAIRED"
	case StatePending:
		return "PENDING"
	case StatePaired:
		return "PAIRED"
	case StateExpiring:
		return "EXPIRING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText makes State render by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable copy of the controller state, handed to observers.
type Snapshot struct {
	State      State    `json:"state"`
	Available  bool     `json:"available"`
	Session    *Session `json:"session,omitempty"`
	DeviceID   string   `json:"deviceId"`
	TimerArmed bool     `json:"timerArmed"`

	// Event names the transition that produced this snapshot (protocol.Event*).
	Event string `json:"event,omitempty"`
}

// IsPaired reports whether a session is present.
func (s Snapshot) IsPaired() bool { return s.Session != nil }

// Token returns the session token, or "" when unpaired.
func (s Snapshot) Token() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.Token
}
