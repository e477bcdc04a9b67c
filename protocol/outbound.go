package protocol

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
)

// Outbound is a frame sent to a node.
type Outbound interface {
	Op() Op
}

// Encode marshals an outbound frame.
func Encode(o Outbound) ([]byte, error) {
	data, err := json.Marshal(struct {
		Op   Op       `json:"op"`
		Data Outbound `json:"d"`
	}{Op: o.Op(), Data: o})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s frame", o.Op())
	}
	return data, nil
}

// VoiceUpdate hands the voice session credentials to the node.
type VoiceUpdate struct {
	GuildID   snowflake.ID `json:"guild_id"`
	SessionID string       `json:"session_id"`
	Token     string       `json:"token"`
	Endpoint  string       `json:"endpoint"`
}

func (VoiceUpdate) Op() Op { return OpSubmitVoiceUpdate }

// SetupResuming enables session resuming under Key for Timeout seconds.
type SetupResuming struct {
	Key     string `json:"key"`
	Timeout int64  `json:"timeout"`
}

func (SetupResuming) Op() Op { return OpSetupResuming }

// SetupDispatchBuffer makes the node buffer events for Timeout seconds
// while the client is away.
type SetupDispatchBuffer struct {
	Timeout int64 `json:"timeout"`
}

func (SetupDispatchBuffer) Op() Op { return OpSetupDispatchBuffer }

// PlayTrack starts a track. Times are in milliseconds; zero means unset.
type PlayTrack struct {
	GuildID   snowflake.ID `json:"guild_id"`
	Track     string       `json:"track"`
	StartTime int64        `json:"start_time,omitempty"`
	EndTime   int64        `json:"end_time,omitempty"`
	NoReplace bool         `json:"no_replace,omitempty"`
}

func (PlayTrack) Op() Op { return OpPlayTrack }

// StopTrack stops the current track.
type StopTrack struct {
	GuildID snowflake.ID `json:"guild_id"`
}

func (StopTrack) Op() Op { return OpStopTrack }

// Pause sets the paused state.
type Pause struct {
	GuildID snowflake.ID `json:"guild_id"`
	State   bool         `json:"state"`
}

func (Pause) Op() Op { return OpPlayerPause }

// Filters replaces the active filter set.
type Filters struct {
	GuildID snowflake.ID   `json:"guild_id"`
	Filters map[string]any `json:"filters"`
}

func (Filters) Op() Op { return OpPlayerFilters }

// Seek moves the playback position, in milliseconds.
type Seek struct {
	GuildID  snowflake.ID `json:"guild_id"`
	Position int64        `json:"position"`
}

func (Seek) Op() Op { return OpPlayerSeek }

// Destroy tears the player down on the node.
type Destroy struct {
	GuildID snowflake.ID `json:"guild_id"`
}

func (Destroy) Op() Op { return OpPlayerDestroy }

// Configure changes player settings. Only volume is supported.
type Configure struct {
	GuildID snowflake.ID `json:"guild_id"`
	Volume  *int         `json:"volume,omitempty"`
}

func (Configure) Op() Op { return OpPlayerConfigure }
