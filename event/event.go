// Package event provides the typed events delivered to the host and the Bus
// that fans them out to subscribers.
package event

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/soundlink/protocol"
	"github.com/osa030/soundlink/track"
)

// Kind identifies an event type.
type Kind string

const (
	KindTrackStart         Kind = "track_start"
	KindTrackEnd           Kind = "track_end"
	KindTrackStuck         Kind = "track_stuck"
	KindTrackException     Kind = "track_exception"
	KindWebSocketOpen      Kind = "websocket_open"
	KindWebSocketClosed    Kind = "websocket_closed"
	KindPlayerUpdate       Kind = "player_update"
	KindPlayerDisconnected Kind = "player_disconnected"
	KindNodeReady          Kind = "node_ready"
	KindNodeDisconnected   Kind = "node_disconnected"
	KindNodeStats          Kind = "node_stats"
)

// Event is implemented by every event type.
type Event interface {
	Kind() Kind
}

// TrackStart is published when a node starts playing a track.
type TrackStart struct {
	GuildID snowflake.ID
	Track   track.Track
}

// TrackEnd is published when a track stops for any reason.
type TrackEnd struct {
	GuildID snowflake.ID
	Track   track.Track
	Reason  protocol.TrackEndReason
}

// TrackStuck is published when a track stops producing audio.
type TrackStuck struct {
	GuildID   snowflake.ID
	Track     track.Track
	Threshold time.Duration
}

// TrackException is published when a track fails to load or play.
type TrackException struct {
	GuildID  snowflake.ID
	Track    track.Track
	Message  string
	Cause    string
	Severity protocol.Severity
}

// WebSocketOpen is published when the node's voice connection is up.
type WebSocketOpen struct {
	GuildID snowflake.ID
	Target  string
	SSRC    int64
}

// WebSocketClosed is published when the node's voice connection closes.
type WebSocketClosed struct {
	GuildID  snowflake.ID
	Code     int
	Reason   string
	ByRemote bool
}

// PlayerUpdate is published for every position report.
type PlayerUpdate struct {
	GuildID  snowflake.ID
	Position time.Duration
	Paused   bool
}

// PlayerDisconnected is published when a player loses its voice session.
type PlayerDisconnected struct {
	GuildID snowflake.ID
	Reason  string
}

// NodeReady is published when a node connection becomes usable.
type NodeReady struct {
	Node        string
	Reconnected bool
}

// NodeDisconnected is published when a node connection drops. Fatal is set
// when the link will not retry.
type NodeDisconnected struct {
	Node  string
	Err   error
	Fatal bool
}

// NodeStatsUpdate is published for every stats report.
type NodeStatsUpdate struct {
	Node  string
	Stats protocol.Stats
}

func (TrackStart) Kind() Kind { return KindTrackStart }
func (TrackEnd) Kind() Kind { return KindTrackEnd }
func (TrackStuck) Kind() Kind { return KindTrackStuck }
func (TrackException) Kind() Kind { return KindTrackException }
func (WebSocketOpen) Kind() Kind { return KindWebSocketOpen }
func (WebSocketClosed) Kind() Kind { return KindWebSocketClosed }
func (PlayerUpdate) Kind() Kind { return KindPlayerUpdate }
func (PlayerDisconnected) Kind() Kind { return KindPlayerDisconnected }
func (NodeReady) Kind() Kind { return KindNodeReady }
func (NodeDisconnected) Kind() Kind { return KindNodeDisconnected }
func (NodeStatsUpdate) Kind() Kind { return KindNodeStats }
