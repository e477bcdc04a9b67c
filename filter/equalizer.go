package filter

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// Bands is the number of equalizer bands.
const Bands = 15

// Equalizer sets per-band gains. Missing bands default to 0.
type Equalizer struct {
	name  string
	gains [Bands]float64
}

// NewEqualizer creates an equalizer from up to 15 gains in [-0.25, 1].
// Gains past band 14 are dropped.
func NewEqualizer(name string, gains ...float64) (Equalizer, error) {
	eq := Equalizer{name: name}
	if eq.name == "" {
		eq.name = "custom"
	}
	for i, g := range gains {
		if i >= Bands {
			break
		}
		if !finite(g) || g < -0.25 || g > 1 {
			return Equalizer{}, outOfRange("gain", g, "in [-0.25, 1]")
		}
		eq.gains[i] = g
	}
	return eq, nil
}

func mustEqualizer(name string, gains ...float64) Equalizer {
	eq, err := NewEqualizer(name, gains...)
	if err != nil {
		panic(err)
	}
	return eq
}

// WithBand returns a copy with one band changed.
func (e Equalizer) WithBand(band int, gain float64) (Equalizer, error) {
	if band < 0 || band >= Bands {
		return Equalizer{}, errors.Wrapf(ErrOutOfRange, "band=%d must be in [0, %d]", band, Bands-1)
	}
	if !finite(gain) || gain < -0.25 || gain > 1 {
		return Equalizer{}, outOfRange("gain", gain, "in [-0.25, 1]")
	}
	e.gains[band] = gain
	return e, nil
}

func (e Equalizer) Name() string { return e.name }
func (e Equalizer) Gains() []float64 { return slices.Clone(e.gains[:]) }
func (e Equalizer) Kind() Kind { return KindEqualizer }
func (e Equalizer) Payload() any { return slices.Clone(e.gains[:]) }
func (e Equalizer) String() string { return e.name }
func (Equalizer) sealed() {}

// Flat returns an equalizer with every band at 0.
func Flat() Equalizer {
	return mustEqualizer("flat")
}

// Boost emphasises lows and highs.
func Boost() Equalizer {
	return mustEqualizer("boost", -.075, .125, .125, .1, .1, .05, .075, 0, 0, 0, 0, 0, .125, .15, .05)
}

// Metal is tuned for rock and metal.
func Metal() Equalizer {
	return mustEqualizer("metal", 0, .1, .1, .15, .13, .1, 0, .125, .175, .175, .125, .125, .1, .075, 0)
}

// Piano is tuned for piano.
func Piano() Equalizer {
	return mustEqualizer("piano", -.25, -.25, -.125, 0, .25, .25, 0, -.25, -.25, 0, 0, .5, .25, -.025)
}

// Jazz is tuned for jazz.
func Jazz() Equalizer {
	return mustEqualizer("jazz", -.13, -.11, .1, -.1, .14, .2, -.18, 0, .24, .22, .2, 0, 0, 0, 0)
}

// Pop is tuned for pop.
func Pop() Equalizer {
	return mustEqualizer("pop", -.02, -.01, .08, .1, .15, .1, .03, -.02, -.035, -.05, -.05, -.05, -.05, -.05, -.05)
}

// Presets returns the built-in equalizers by name.
func Presets() map[string]func() Equalizer {
	return map[string]func() Equalizer{
		"flat":  Flat,
		"boost": Boost,
		"metal": Metal,
		"piano": Piano,
		"jazz":  Jazz,
		"pop":   Pop,
	}
}
