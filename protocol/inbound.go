package protocol

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
)

// Errors
var (
	ErrUnknownOp        = errors.New("unknown op code")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Inbound is a frame received from a node.
type Inbound interface {
	Op() Op
}

// Routed is an inbound frame addressed to a single player.
type Routed interface {
	Inbound
	Guild() snowflake.ID
}

type frame struct {
	Op   Op              `json:"op"`
	Data json.RawMessage `json:"d"`
}

// Decode parses an inbound frame.
func Decode(data []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode frame"), ErrMalformedPayload)
	}

	var in Inbound
	switch f.Op {
	case OpStats:
		in = &Stats{}
	case OpPlayerUpdate:
		in = &PlayerUpdate{}
	case OpPlayerEvent:
		in = &PlayerEvent{}
	default:
		return nil, errors.Wrapf(ErrUnknownOp, "op=%d", int(f.Op))
	}

	if err := json.Unmarshal(f.Data, in); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode %s payload", f.Op), ErrMalformedPayload)
	}
	return in, nil
}

// Frames reports audio frame delivery for the last minute.
type Frames struct {
	Sent   int  `json:"sent"`
	Lost   int  `json:"lost"`
	Usable bool `json:"usable"`
}

// CurrentTrack is the node's view of what a player is doing.
type CurrentTrack struct {
	Track    string `json:"track"`
	Position int64  `json:"position"` // milliseconds
	Paused   bool   `json:"paused"`
}

// PlayerUpdate carries the authoritative position and paused state.
type PlayerUpdate struct {
	GuildID      snowflake.ID `json:"guild_id"`
	Frames       Frames       `json:"frames"`
	CurrentTrack CurrentTrack `json:"current_track"`
}

func (*PlayerUpdate) Op() Op { return OpPlayerUpdate }
func (u *PlayerUpdate) Guild() snowflake.ID { return u.GuildID }

// EventType is the type of a player event.
type EventType string

const (
	EventTrackStart      EventType = "TRACK_START"
	EventTrackEnd        EventType = "TRACK_END"
	EventTrackStuck      EventType = "TRACK_STUCK"
	EventTrackException  EventType = "TRACK_EXCEPTION"
	EventWebSocketOpen   EventType = "WEBSOCKET_OPEN"
	EventWebSocketReady  EventType = "WEBSOCKET_READY"
	EventWebSocketClosed EventType = "WEBSOCKET_CLOSED"
)

// TrackEndReason tells why a track ended.
type TrackEndReason string

const (
	ReasonFinished   TrackEndReason = "FINISHED"
	ReasonLoadFailed TrackEndReason = "LOAD_FAILED"
	ReasonStopped    TrackEndReason = "STOPPED"
	ReasonReplaced   TrackEndReason = "REPLACED"
	ReasonCleanup    TrackEndReason = "CLEANUP"
)

// MayStartNext reports whether the queue should advance after a track ended
// for this reason.
func (r TrackEndReason) MayStartNext() bool {
	return r == ReasonFinished || r == ReasonLoadFailed
}

// Severity is the severity of a track exception.
type Severity string

const (
	SeverityCommon     Severity = "COMMON"
	SeveritySuspicious Severity = "SUSPICIOUS"
	SeverityFault      Severity = "FAULT"
)

// Exception describes why a track failed.
type Exception struct {
	Message  string   `json:"message"`
	Cause    string   `json:"cause"`
	Severity Severity `json:"severity"`
}

// PlayerEvent is a player event. Which fields are set depends on Type.
type PlayerEvent struct {
	Type        EventType    `json:"type"`
	GuildID     snowflake.ID `json:"guild_id"`
	Track       string       `json:"track"`
	Reason      string       `json:"reason"`       // TRACK_END reason or WEBSOCKET_CLOSED reason
	ThresholdMs int64        `json:"threshold_ms"` // TRACK_STUCK
	Exception   *Exception   `json:"exception"`    // TRACK_EXCEPTION
	Target      string       `json:"target"`       // WEBSOCKET_OPEN
	SSRC        int64        `json:"ssrc"`         // WEBSOCKET_OPEN
	Code        int          `json:"code"`         // WEBSOCKET_CLOSED
	ByRemote    bool         `json:"by_remote"`    // WEBSOCKET_CLOSED
}

func (*PlayerEvent) Op() Op { return OpPlayerEvent }
func (e *PlayerEvent) Guild() snowflake.ID { return e.GuildID }

// EndReason returns the reason of a TRACK_END event.
func (e *PlayerEvent) EndReason() TrackEndReason {
	return TrackEndReason(e.Reason)
}
