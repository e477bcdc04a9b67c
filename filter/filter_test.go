package filter

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_Ranges(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name    string
		build   func() error
		wantErr error
	}{
		{"volume ok", func() error { _, err := NewVolume(5); return err }, nil},
		{"volume too loud", func() error { _, err := NewVolume(5.01); return err }, ErrOutOfRange},
		{"volume negative", func() error { _, err := NewVolume(-0.1); return err }, ErrOutOfRange},
		{"volume percent", func() error { _, err := VolumePercent(250); return err }, nil},
		{"rotation zero", func() error { _, err := NewRotation(0); return err }, ErrOutOfRange},
		{"vibrato ok", func() error { _, err := NewVibrato(14, 1); return err }, nil},
		{"vibrato frequency", func() error { _, err := NewVibrato(14.5, 0.5); return err }, ErrOutOfRange},
		{"vibrato depth zero", func() error { _, err := NewVibrato(2, 0); return err }, ErrOutOfRange},
		{"tremolo high frequency ok", func() error { _, err := NewTremolo(40, 0.5); return err }, nil},
		{"tremolo depth", func() error { _, err := NewTremolo(2, 1.5); return err }, ErrOutOfRange},
		{"karaoke level", func() error { _, err := NewKaraoke(1.2, 1, 220, 100); return err }, ErrOutOfRange},
		{"channel mix", func() error { _, err := NewChannelMix(1, 0, 0, 2); return err }, ErrOutOfRange},
		{"low pass", func() error { _, err := NewLowPass(0.5); return err }, ErrOutOfRange},
		{"equalizer gain", func() error { _, err := NewEqualizer("x", 0, 1.1); return err }, ErrOutOfRange},
		{"equalizer low gain", func() error { _, err := NewEqualizer("x", -0.3); return err }, ErrOutOfRange},
		{"timescale pitch conflict", func() error {
			_, err := NewTimescale(WithPitch(1.2), WithPitchSemitones(2))
			return err
		}, ErrConflict},
		{"timescale rate conflict", func() error {
			_, err := NewTimescale(WithRate(1.2), WithRateChange(5))
			return err
		}, ErrConflict},
		{"timescale speed conflict", func() error {
			_, err := NewTimescale(WithSpeed(1.2), WithSpeedChange(5))
			return err
		}, ErrConflict},
		{"timescale non-positive speed", func() error {
			_, err := NewTimescale(WithSpeed(0))
			return err
		}, ErrOutOfRange},
		{"timescale mixed groups ok", func() error {
			_, err := NewTimescale(WithPitch(1.2), WithRateChange(5), WithSpeed(0.8))
			return err
		}, nil},
		{"volume NaN", func() error { _, err := NewVolume(nan); return err }, ErrOutOfRange},
		{"rotation infinite", func() error { _, err := NewRotation(inf); return err }, ErrOutOfRange},
		{"rotation NaN", func() error { _, err := NewRotation(nan); return err }, ErrOutOfRange},
		{"vibrato NaN depth", func() error { _, err := NewVibrato(2, nan); return err }, ErrOutOfRange},
		{"tremolo infinite frequency", func() error { _, err := NewTremolo(inf, 0.5); return err }, ErrOutOfRange},
		{"tremolo NaN frequency", func() error { _, err := NewTremolo(nan, 0.5); return err }, ErrOutOfRange},
		{"karaoke infinite band", func() error { _, err := NewKaraoke(1, 1, inf, 100); return err }, ErrOutOfRange},
		{"karaoke NaN width", func() error { _, err := NewKaraoke(1, 1, 220, nan); return err }, ErrOutOfRange},
		{"channel mix NaN", func() error { _, err := NewChannelMix(nan, 0, 0, 1); return err }, ErrOutOfRange},
		{"low pass infinite", func() error { _, err := NewLowPass(inf); return err }, ErrOutOfRange},
		{"low pass NaN", func() error { _, err := NewLowPass(nan); return err }, ErrOutOfRange},
		{"equalizer NaN gain", func() error { _, err := NewEqualizer("x", nan); return err }, ErrOutOfRange},
		{"equalizer band NaN", func() error { _, err := Flat().WithBand(2, nan); return err }, ErrOutOfRange},
		{"timescale NaN pitch", func() error {
			_, err := NewTimescale(WithPitch(nan))
			return err
		}, ErrOutOfRange},
		{"timescale infinite speed", func() error {
			_, err := NewTimescale(WithSpeed(inf))
			return err
		}, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestEqualizer(t *testing.T) {
	eq, err := NewEqualizer("", 0.1, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "custom", eq.Name())
	gains := eq.Gains()
	assert.Len(t, gains, Bands)
	assert.Equal(t, 0.1, gains[0])
	assert.Equal(t, 0.0, gains[14])

	long := make([]float64, 20)
	long[14] = 0.5
	eq, err = NewEqualizer("long", long...)
	require.NoError(t, err)
	assert.Len(t, eq.Gains(), Bands)
	assert.Equal(t, 0.5, eq.Gains()[14])

	changed, err := eq.WithBand(3, -0.2)
	require.NoError(t, err)
	assert.Equal(t, -0.2, changed.Gains()[3])
	assert.Equal(t, 0.0, eq.Gains()[3])

	_, err = eq.WithBand(15, 0)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestPresets(t *testing.T) {
	for name, preset := range Presets() {
		t.Run(name, func(t *testing.T) {
			eq := preset()
			assert.Equal(t, name, eq.Name())
			assert.Len(t, eq.Gains(), Bands)
		})
	}
	assert.Equal(t, -0.025, Piano().Gains()[13])
	assert.Equal(t, 0.0, Piano().Gains()[14])
}

func TestSink_SetOverwrites(t *testing.T) {
	s := NewSink()
	v1, _ := NewVolume(0.5)
	v2, _ := NewVolume(2)
	s.Set(v1)
	s.Set(v2)

	assert.Equal(t, 1, s.Len())
	got, ok := s.Get(KindVolume)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.(Volume).Level())
	assert.Equal(t, map[string]any{"volume": 2.0}, s.Serialize())
}

func TestSink_OmitsAbsentKinds(t *testing.T) {
	rot, _ := NewRotation(0.2)
	vib, _ := NewVibrato(4, 0.6)
	s := NewSink(rot, vib, Boost())

	s.Remove(KindVibrato)
	payload := s.Serialize()
	assert.Contains(t, payload, "rotation")
	assert.Contains(t, payload, "equalizer")
	assert.NotContains(t, payload, "vibrato")
	assert.NotContains(t, payload, "volume")
	assert.Equal(t, []Kind{KindRotation, KindEqualizer}, s.Kinds())

	s.Remove(KindTremolo)
	assert.Equal(t, 2, s.Len())

	s.Clear()
	assert.Empty(t, s.Serialize())
}

func TestSink_MarshalJSON(t *testing.T) {
	ts, err := NewTimescale(WithSpeed(1.25), WithPitchSemitones(2))
	require.NoError(t, err)
	rot, _ := NewRotation(0.5)
	s := NewSink(ts, rot)

	a, err := json.Marshal(s)
	require.NoError(t, err)
	b, err := json.Marshal(s.Clone())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.JSONEq(t, `{"rotation":0.5,"timescale":{"speed":1.25,"pitch_semi_tones":2}}`, string(a))
}

func TestSink_CloneIsIndependent(t *testing.T) {
	vol, _ := NewVolume(1)
	s := NewSink(vol)
	c := s.Clone()
	c.Remove(KindVolume)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, c.Len())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		settings map[string]any
		payload  any
		wantErr  bool
	}{
		{
			name:     "volume",
			kind:     "volume",
			settings: map[string]any{"level": 0.8},
			payload:  0.8,
		},
		{
			name:     "vibrato defaults",
			kind:     "vibrato",
			settings: nil,
			payload:  map[string]float64{"frequency": 2, "depth": 0.5},
		},
		{
			name:     "rotation from int",
			kind:     "rotation",
			settings: map[string]any{"hz": 1},
			payload:  1.0,
		},
		{
			name:     "timescale",
			kind:     "timescale",
			settings: map[string]any{"speed": 1.1, "pitch": 0.9},
			payload:  map[string]float64{"speed": 1.1, "pitch": 0.9},
		},
		{
			name:     "equalizer preset",
			kind:     "equalizer",
			settings: map[string]any{"preset": "flat"},
			payload:  make([]float64, Bands),
		},
		{
			name:     "unknown preset",
			kind:     "equalizer",
			settings: map[string]any{"preset": "dubstep"},
			wantErr:  true,
		},
		{
			name:     "out of range",
			kind:     "volume",
			settings: map[string]any{"level": 9},
			wantErr:  true,
		},
		{
			name:    "unknown kind",
			kind:    "reverb",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.kind, tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, f)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Kind(tt.kind), f.Kind())
			assert.Equal(t, tt.payload, f.Payload())
		})
	}
}
