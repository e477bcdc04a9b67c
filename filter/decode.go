package filter

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
)

type volumeSettings struct {
	Level float64 `mapstructure:"level" default:"1"`
}

type timescaleSettings struct {
	Pitch          *float64 `mapstructure:"pitch"`
	PitchOctaves   *float64 `mapstructure:"pitch_octaves"`
	PitchSemitones *float64 `mapstructure:"pitch_semi_tones"`
	Rate           *float64 `mapstructure:"rate"`
	RateChange     *float64 `mapstructure:"rate_change"`
	Speed          *float64 `mapstructure:"speed"`
	SpeedChange    *float64 `mapstructure:"speed_change"`
}

type equalizerSettings struct {
	Preset string    `mapstructure:"preset"`
	Name   string    `mapstructure:"name"`
	Gains  []float64 `mapstructure:"gains"`
}

type oscillatorSettings struct {
	Frequency float64 `mapstructure:"frequency" default:"2"`
	Depth     float64 `mapstructure:"depth" default:"0.5"`
}

type rotationSettings struct {
	Hz float64 `mapstructure:"hz" default:"5"`
}

type karaokeSettings struct {
	Level       float64 `mapstructure:"level" default:"1"`
	MonoLevel   float64 `mapstructure:"mono_level" default:"1"`
	FilterBand  float64 `mapstructure:"filter_band" default:"220"`
	FilterWidth float64 `mapstructure:"filter_width" default:"100"`
}

type channelMixSettings struct {
	LeftToLeft   float64 `mapstructure:"left_to_left"`
	LeftToRight  float64 `mapstructure:"left_to_right"`
	RightToLeft  float64 `mapstructure:"right_to_left"`
	RightToRight float64 `mapstructure:"right_to_right"`
}

type lowPassSettings struct {
	Smoothing float64 `mapstructure:"smoothing" default:"20"`
}

func asFilter[F Filter](f F, err error) (Filter, error) {
	if err != nil {
		return nil, err
	}
	return f, nil
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	return nil
}

// Decode builds a filter from a kind name and a settings map, as found in
// configuration files. Unset parameters take their usual defaults.
func Decode(kind string, settings map[string]any) (Filter, error) {
	switch Kind(kind) {
	case KindVolume:
		var s volumeSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewVolume(s.Level))

	case KindTimescale:
		var s timescaleSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		var opts []TimescaleOption
		set := func(v *float64, opt func(float64) TimescaleOption) {
			if v != nil {
				opts = append(opts, opt(*v))
			}
		}
		set(s.Pitch, WithPitch)
		set(s.PitchOctaves, WithPitchOctaves)
		set(s.PitchSemitones, WithPitchSemitones)
		set(s.Rate, WithRate)
		set(s.RateChange, WithRateChange)
		set(s.Speed, WithSpeed)
		set(s.SpeedChange, WithSpeedChange)
		return asFilter(NewTimescale(opts...))

	case KindEqualizer:
		var s equalizerSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		if s.Preset != "" {
			preset, ok := Presets()[s.Preset]
			if !ok {
				return nil, errors.Newf("unknown equalizer preset: %s", s.Preset)
			}
			return preset(), nil
		}
		return asFilter(NewEqualizer(s.Name, s.Gains...))

	case KindVibrato:
		var s oscillatorSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewVibrato(s.Frequency, s.Depth))

	case KindTremolo:
		var s oscillatorSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewTremolo(s.Frequency, s.Depth))

	case KindRotation:
		var s rotationSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewRotation(s.Hz))

	case KindKaraoke:
		var s karaokeSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewKaraoke(s.Level, s.MonoLevel, s.FilterBand, s.FilterWidth))

	case KindChannelMix:
		var s channelMixSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewChannelMix(s.LeftToLeft, s.LeftToRight, s.RightToLeft, s.RightToRight))

	case KindLowPass:
		var s lowPassSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, err
		}
		return asFilter(NewLowPass(s.Smoothing))

	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind=%s", kind)
	}
}
