package player

// State represents the player state.
type State int

const (
	StateDisconnected State = iota // No voice session
	StateConnecting                // Waiting for the node to open the voice connection
	StateConnected                 // Voice connection up, nothing playing
	StatePlaying                   // Track is playing
	StatePaused                    // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
