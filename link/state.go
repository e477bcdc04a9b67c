package link

// State is the connection state.
type State int

const (
	StateIdle         State = iota // Not opened yet
	StateConnecting                // First dial in progress
	StateReady                     // Connected and authenticated
	StateReconnecting              // Transport dropped, retrying
	StateClosed                    // Closed by the owner
	StateFailed                    // Gave up (authentication or retries exhausted)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
