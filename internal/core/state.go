package core

// SessionState tracks one room membership attempt of the local client.
// Exactly one state at a time: Idle → Connecting → AwaitingAdmission →
// Admitted → Leaving → Idle.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateConnecting
	StateAwaitingAdmission
	StateAdmitted
	StateLeaving
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAdmission:
		return "awaiting_admission"
	case StateAdmitted:
		return "admitted"
	case StateLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}
