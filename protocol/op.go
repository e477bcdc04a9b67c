// Package protocol defines the frames exchanged with a node over its
// websocket. Every frame is a JSON object {"op": <int>, "d": {...}}.
package protocol

// Op is a frame op code.
type Op int

const (
	OpSubmitVoiceUpdate   Op = 0
	OpStats               Op = 1
	OpSetupResuming       Op = 2
	OpSetupDispatchBuffer Op = 3
	OpPlayerEvent         Op = 4
	OpPlayerUpdate        Op = 5
	OpPlayTrack           Op = 6
	OpStopTrack           Op = 7
	OpPlayerPause         Op = 8
	OpPlayerFilters       Op = 9
	OpPlayerSeek          Op = 10
	OpPlayerDestroy       Op = 11
	OpPlayerConfigure     Op = 12
)

// String returns the string representation of the op code.
func (o Op) String() string {
	switch o {
	case OpSubmitVoiceUpdate:
		return "submit_voice_update"
	case OpStats:
		return "stats"
	case OpSetupResuming:
		return "setup_resuming"
	case OpSetupDispatchBuffer:
		return "setup_dispatch_buffer"
	case OpPlayerEvent:
		return "player_event"
	case OpPlayerUpdate:
		return "player_update"
	case OpPlayTrack:
		return "play_track"
	case OpStopTrack:
		return "stop_track"
	case OpPlayerPause:
		return "player_pause"
	case OpPlayerFilters:
		return "player_filters"
	case OpPlayerSeek:
		return "player_seek"
	case OpPlayerDestroy:
		return "player_destroy"
	case OpPlayerConfigure:
		return "player_configure"
	default:
		return "unknown"
	}
}
