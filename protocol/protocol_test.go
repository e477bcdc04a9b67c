package protocol

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guild = snowflake.ID(81384788765712384)

func TestEncode(t *testing.T) {
	vol := 250
	tests := []struct {
		name     string
		frame    Outbound
		expected string
	}{
		{
			name:     "voice update",
			frame:    VoiceUpdate{GuildID: guild, SessionID: "s", Token: "t", Endpoint: "e:443"},
			expected: `{"op":0,"d":{"guild_id":"81384788765712384","session_id":"s","token":"t","endpoint":"e:443"}}`,
		},
		{
			name:     "play omits unset times",
			frame:    PlayTrack{GuildID: guild, Track: "QAAA"},
			expected: `{"op":6,"d":{"guild_id":"81384788765712384","track":"QAAA"}}`,
		},
		{
			name:     "play with bounds",
			frame:    PlayTrack{GuildID: guild, Track: "QAAA", StartTime: 1000, EndTime: 5000, NoReplace: true},
			expected: `{"op":6,"d":{"guild_id":"81384788765712384","track":"QAAA","start_time":1000,"end_time":5000,"no_replace":true}}`,
		},
		{
			name:     "pause false is kept",
			frame:    Pause{GuildID: guild, State: false},
			expected: `{"op":8,"d":{"guild_id":"81384788765712384","state":false}}`,
		},
		{
			name:     "seek",
			frame:    Seek{GuildID: guild, Position: 30000},
			expected: `{"op":10,"d":{"guild_id":"81384788765712384","position":30000}}`,
		},
		{
			name:     "volume",
			frame:    Configure{GuildID: guild, Volume: &vol},
			expected: `{"op":12,"d":{"guild_id":"81384788765712384","volume":250}}`,
		},
		{
			name:     "filters",
			frame:    Filters{GuildID: guild, Filters: map[string]any{"rotation": 0.5}},
			expected: `{"op":9,"d":{"guild_id":"81384788765712384","filters":{"rotation":0.5}}}`,
		},
		{
			name:     "resuming",
			frame:    SetupResuming{Key: "abc", Timeout: 60},
			expected: `{"op":2,"d":{"key":"abc","timeout":60}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestDecode_PlayerUpdate(t *testing.T) {
	in, err := Decode([]byte(`{"op":5,"d":{"guild_id":"81384788765712384","frames":{"sent":3000,"lost":2,"usable":true},"current_track":{"track":"QAAA","position":5000,"paused":false}}}`))
	require.NoError(t, err)

	update, ok := in.(*PlayerUpdate)
	require.True(t, ok)
	assert.Equal(t, guild, update.Guild())
	assert.Equal(t, int64(5000), update.CurrentTrack.Position)
	assert.Equal(t, "QAAA", update.CurrentTrack.Track)
	assert.Equal(t, 2, update.Frames.Lost)
	assert.True(t, update.Frames.Usable)
}

func TestDecode_PlayerEvents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, e *PlayerEvent)
	}{
		{
			name:  "track end",
			input: `{"op":4,"d":{"type":"TRACK_END","guild_id":"81384788765712384","track":"QAAA","reason":"FINISHED"}}`,
			check: func(t *testing.T, e *PlayerEvent) {
				assert.Equal(t, EventTrackEnd, e.Type)
				assert.Equal(t, ReasonFinished, e.EndReason())
				assert.True(t, e.EndReason().MayStartNext())
			},
		},
		{
			name:  "track exception",
			input: `{"op":4,"d":{"type":"TRACK_EXCEPTION","guild_id":"81384788765712384","track":"QAAA","exception":{"message":"boom","cause":"io","severity":"FAULT"}}}`,
			check: func(t *testing.T, e *PlayerEvent) {
				require.NotNil(t, e.Exception)
				assert.Equal(t, SeverityFault, e.Exception.Severity)
				assert.Equal(t, "boom", e.Exception.Message)
			},
		},
		{
			name:  "track stuck",
			input: `{"op":4,"d":{"type":"TRACK_STUCK","guild_id":"81384788765712384","track":"QAAA","threshold_ms":10000}}`,
			check: func(t *testing.T, e *PlayerEvent) {
				assert.Equal(t, int64(10000), e.ThresholdMs)
			},
		},
		{
			name:  "websocket closed",
			input: `{"op":4,"d":{"type":"WEBSOCKET_CLOSED","guild_id":"81384788765712384","code":4014,"reason":"Disconnected.","by_remote":true}}`,
			check: func(t *testing.T, e *PlayerEvent) {
				assert.Equal(t, 4014, e.Code)
				assert.Equal(t, "Disconnected.", e.Reason)
				assert.True(t, e.ByRemote)
			},
		},
		{
			name:  "websocket open",
			input: `{"op":4,"d":{"type":"WEBSOCKET_OPEN","guild_id":"81384788765712384","target":"1.2.3.4","ssrc":42}}`,
			check: func(t *testing.T, e *PlayerEvent) {
				assert.Equal(t, "1.2.3.4", e.Target)
				assert.Equal(t, int64(42), e.SSRC)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			e, ok := in.(*PlayerEvent)
			require.True(t, ok)
			assert.Equal(t, guild, e.Guild())
			tt.check(t, e)
		})
	}
}

func TestDecode_Stats(t *testing.T) {
	in, err := Decode([]byte(`{"op":1,"d":{"memory":{"heap_used":{"init":1,"max":2,"committed":3,"used":4},"non_heap_used":{"init":5,"max":6,"committed":7,"used":8}},"cpu":{"cores":4,"system_load":0.1,"process_load":0.05},"threads":{"running":10,"daemon":5,"peak":12,"total_started":40},"players":{"active":2,"total":3}}}`))
	require.NoError(t, err)

	stats, ok := in.(*Stats)
	require.True(t, ok)
	assert.Equal(t, int64(4), stats.Memory.HeapUsed.Used)
	assert.Equal(t, int64(8), stats.Memory.NonHeapUsed.Used)
	assert.Equal(t, 4, stats.CPU.Cores)
	assert.Equal(t, 40, stats.Threads.TotalStarted)
	assert.Equal(t, 2, stats.Players.Active)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"op":99,"d":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownOp))

	_, err = Decode([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	_, err = Decode([]byte(`{"op":5,"d":{"guild_id":true}}`))
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestStats_Penalty(t *testing.T) {
	idle := &Stats{}
	busy := &Stats{}
	busy.Players.Active = 5
	busy.CPU.Cores = 4
	busy.CPU.SystemLoad = 0.5

	assert.Equal(t, 0.0, idle.Penalty())
	assert.Greater(t, busy.Penalty(), idle.Penalty())

	var missing *Stats
	assert.Equal(t, 0.0, missing.Penalty())
}

func TestTrackEndReason_MayStartNext(t *testing.T) {
	assert.True(t, ReasonFinished.MayStartNext())
	assert.True(t, ReasonLoadFailed.MayStartNext())
	assert.False(t, ReasonStopped.MayStartNext())
	assert.False(t, ReasonReplaced.MayStartNext())
	assert.False(t, ReasonCleanup.MayStartNext())
}
