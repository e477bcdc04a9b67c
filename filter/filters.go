package filter

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Volume scales the output. 1.0 is unchanged, 5.0 is 500%.
type Volume struct {
	level float64
}

// NewVolume creates a volume filter with level in [0, 5].
func NewVolume(level float64) (Volume, error) {
	if !finite(level) || level < 0 || level > 5 {
		return Volume{}, outOfRange("volume", level, "in [0, 5]")
	}
	return Volume{level: level}, nil
}

// VolumePercent creates a volume filter from a percentage (100 = 1.0).
func VolumePercent(percent float64) (Volume, error) {
	return NewVolume(percent / 100)
}

func (v Volume) Kind() Kind { return KindVolume }
func (v Volume) Payload() any { return v.level }
func (v Volume) Level() float64 { return v.level }
func (v Volume) Percent() int { return int(v.level * 100) }
func (v Volume) String() string { return fmt.Sprintf("volume(%.2f)", v.level) }
func (Volume) sealed() {}

// Timescale changes pitch, rate and speed. Within each group only one way of
// expressing the value may be set.
type Timescale struct {
	pitch          *float64
	pitchOctaves   *float64
	pitchSemitones *float64
	rate           *float64
	rateChange     *float64
	speed          *float64
	speedChange    *float64
}

// TimescaleOption sets one timescale parameter.
type TimescaleOption func(*Timescale)

func ptr(v float64) *float64 { return &v }

func WithPitch(v float64) TimescaleOption { return func(t *Timescale) { t.pitch = ptr(v) } }
func WithPitchOctaves(v float64) TimescaleOption { return func(t *Timescale) { t.pitchOctaves = ptr(v) } }
func WithPitchSemitones(v float64) TimescaleOption { return func(t *Timescale) { t.pitchSemitones = ptr(v) } }
func WithRate(v float64) TimescaleOption { return func(t *Timescale) { t.rate = ptr(v) } }
func WithRateChange(v float64) TimescaleOption { return func(t *Timescale) { t.rateChange = ptr(v) } }
func WithSpeed(v float64) TimescaleOption { return func(t *Timescale) { t.speed = ptr(v) } }
func WithSpeedChange(v float64) TimescaleOption { return func(t *Timescale) { t.speedChange = ptr(v) } }

func countSet(values ...*float64) int {
	n := 0
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return n
}

// NewTimescale creates a timescale filter.
func NewTimescale(opts ...TimescaleOption) (Timescale, error) {
	var t Timescale
	for _, opt := range opts {
		opt(&t)
	}

	if countSet(t.pitch, t.pitchOctaves, t.pitchSemitones) > 1 {
		return Timescale{}, errors.Wrap(ErrConflict, "only one of pitch, pitch_octaves and pitch_semi_tones can be used")
	}
	if countSet(t.rate, t.rateChange) > 1 {
		return Timescale{}, errors.Wrap(ErrConflict, "only one of rate and rate_change can be used")
	}
	if countSet(t.speed, t.speedChange) > 1 {
		return Timescale{}, errors.Wrap(ErrConflict, "only one of speed and speed_change can be used")
	}

	for name, v := range map[string]*float64{"pitch": t.pitch, "rate": t.rate, "speed": t.speed} {
		if v != nil && (!finite(*v) || *v <= 0) {
			return Timescale{}, outOfRange(name, *v, "positive")
		}
	}
	return t, nil
}

func (t Timescale) Kind() Kind { return KindTimescale }

func (t Timescale) Payload() any {
	out := make(map[string]float64)
	for key, v := range map[string]*float64{
		"pitch":            t.pitch,
		"pitch_octaves":    t.pitchOctaves,
		"pitch_semi_tones": t.pitchSemitones,
		"rate":             t.rate,
		"rate_change":      t.rateChange,
		"speed":            t.speed,
		"speed_change":     t.speedChange,
	} {
		if v != nil {
			out[key] = *v
		}
	}
	return out
}

func (Timescale) sealed() {}

// Rotation pans audio around the stereo field.
type Rotation struct {
	hz float64
}

// NewRotation creates a rotation filter; hz must be positive.
func NewRotation(hz float64) (Rotation, error) {
	if !finite(hz) || hz <= 0 {
		return Rotation{}, outOfRange("hz", hz, "positive")
	}
	return Rotation{hz: hz}, nil
}

func (r Rotation) Kind() Kind { return KindRotation }
func (r Rotation) Payload() any { return r.hz }
func (r Rotation) Hz() float64 { return r.hz }
func (Rotation) sealed() {}

// Vibrato oscillates the pitch.
type Vibrato struct {
	frequency float64
	depth     float64
}

// NewVibrato creates a vibrato filter with frequency in (0, 14] and depth
// in (0, 1].
func NewVibrato(frequency, depth float64) (Vibrato, error) {
	if !finite(frequency) || frequency <= 0 || frequency > 14 {
		return Vibrato{}, outOfRange("frequency", frequency, "in (0, 14]")
	}
	if !finite(depth) || depth <= 0 || depth > 1 {
		return Vibrato{}, outOfRange("depth", depth, "in (0, 1]")
	}
	return Vibrato{frequency: frequency, depth: depth}, nil
}

func (v Vibrato) Kind() Kind { return KindVibrato }
func (v Vibrato) Payload() any {
	return map[string]float64{"frequency": v.frequency, "depth": v.depth}
}
func (Vibrato) sealed() {}

// Tremolo oscillates the volume.
type Tremolo struct {
	frequency float64
	depth     float64
}

// NewTremolo creates a tremolo filter with a positive frequency and depth
// in (0, 1].
func NewTremolo(frequency, depth float64) (Tremolo, error) {
	if !finite(frequency) || frequency <= 0 {
		return Tremolo{}, outOfRange("frequency", frequency, "positive")
	}
	if !finite(depth) || depth <= 0 || depth > 1 {
		return Tremolo{}, outOfRange("depth", depth, "in (0, 1]")
	}
	return Tremolo{frequency: frequency, depth: depth}, nil
}

func (t Tremolo) Kind() Kind { return KindTremolo }
func (t Tremolo) Payload() any {
	return map[string]float64{"frequency": t.frequency, "depth": t.depth}
}
func (Tremolo) sealed() {}

// Karaoke suppresses a frequency band, usually the vocals.
type Karaoke struct {
	level       float64
	monoLevel   float64
	filterBand  float64
	filterWidth float64
}

// NewKaraoke creates a karaoke filter. Levels are in [0, 1]; band and width
// are in Hz and must not be negative.
func NewKaraoke(level, monoLevel, filterBand, filterWidth float64) (Karaoke, error) {
	if !finite(level) || level < 0 || level > 1 {
		return Karaoke{}, outOfRange("level", level, "in [0, 1]")
	}
	if !finite(monoLevel) || monoLevel < 0 || monoLevel > 1 {
		return Karaoke{}, outOfRange("mono_level", monoLevel, "in [0, 1]")
	}
	if !finite(filterBand) || filterBand < 0 {
		return Karaoke{}, outOfRange("filter_band", filterBand, "non-negative")
	}
	if !finite(filterWidth) || filterWidth < 0 {
		return Karaoke{}, outOfRange("filter_width", filterWidth, "non-negative")
	}
	return Karaoke{level: level, monoLevel: monoLevel, filterBand: filterBand, filterWidth: filterWidth}, nil
}

func (k Karaoke) Kind() Kind { return KindKaraoke }
func (k Karaoke) Payload() any {
	return map[string]float64{
		"level":        k.level,
		"mono_level":   k.monoLevel,
		"filter_band":  k.filterBand,
		"filter_width": k.filterWidth,
	}
}
func (Karaoke) sealed() {}

// ChannelMix mixes the left and right channels.
type ChannelMix struct {
	leftToLeft   float64
	leftToRight  float64
	rightToLeft  float64
	rightToRight float64
}

// NewChannelMix creates a channel mix filter; every factor is in [0, 1].
func NewChannelMix(leftToLeft, leftToRight, rightToLeft, rightToRight float64) (ChannelMix, error) {
	for name, v := range map[string]float64{
		"left_to_left":   leftToLeft,
		"left_to_right":  leftToRight,
		"right_to_left":  rightToLeft,
		"right_to_right": rightToRight,
	} {
		if !finite(v) || v < 0 || v > 1 {
			return ChannelMix{}, outOfRange(name, v, "in [0, 1]")
		}
	}
	return ChannelMix{
		leftToLeft:   leftToLeft,
		leftToRight:  leftToRight,
		rightToLeft:  rightToLeft,
		rightToRight: rightToRight,
	}, nil
}

// Mono mixes both channels equally.
func Mono() ChannelMix {
	return ChannelMix{leftToLeft: 0.5, leftToRight: 0.5, rightToLeft: 0.5, rightToRight: 0.5}
}

func (c ChannelMix) Kind() Kind { return KindChannelMix }
func (c ChannelMix) Payload() any {
	return map[string]float64{
		"left_to_left":   c.leftToLeft,
		"left_to_right":  c.leftToRight,
		"right_to_left":  c.rightToLeft,
		"right_to_right": c.rightToRight,
	}
}
func (ChannelMix) sealed() {}

// LowPass suppresses high frequencies.
type LowPass struct {
	smoothing float64
}

// NewLowPass creates a low pass filter; smoothing must be at least 1.
func NewLowPass(smoothing float64) (LowPass, error) {
	if !finite(smoothing) || smoothing < 1 {
		return LowPass{}, outOfRange("smoothing", smoothing, "at least 1")
	}
	return LowPass{smoothing: smoothing}, nil
}

func (l LowPass) Kind() Kind { return KindLowPass }
func (l LowPass) Payload() any {
	return map[string]float64{"smoothing": l.smoothing}
}
func (LowPass) sealed() {}
