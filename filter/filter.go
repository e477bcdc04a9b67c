// Package filter provides the audio filters a node applies to a player and
// the Sink that combines them into a single wire payload.
package filter

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrOutOfRange  = errors.New("filter parameter out of range")
	ErrConflict    = errors.New("conflicting filter parameters")
	ErrUnknownKind = errors.New("unknown filter kind")
)

// Kind identifies a filter. At most one filter per kind is active.
type Kind string

const (
	KindVolume     Kind = "volume"
	KindTimescale  Kind = "timescale"
	KindKaraoke    Kind = "karaoke"
	KindChannelMix Kind = "channel_mix"
	KindVibrato    Kind = "vibrato"
	KindRotation   Kind = "rotation"
	KindLowPass    Kind = "low_pass"
	KindTremolo    Kind = "tremolo"
	KindEqualizer  Kind = "equalizer"
)

// Kinds lists every filter kind in canonical order.
var Kinds = []Kind{
	KindVolume,
	KindTimescale,
	KindKaraoke,
	KindChannelMix,
	KindVibrato,
	KindRotation,
	KindLowPass,
	KindTremolo,
	KindEqualizer,
}

// Filter is an immutable filter value. The set of implementations is closed.
type Filter interface {
	// Kind returns the filter kind, also used as the payload key.
	Kind() Kind
	// Payload returns the wire representation of the filter parameters.
	Payload() any

	sealed()
}

// finite reports whether v is neither NaN nor infinite. Neither encodes as JSON.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func outOfRange(param string, value float64, bounds string) error {
	return errors.Wrapf(ErrOutOfRange, "%s=%v must be %s", param, value, bounds)
}
