package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		input    string
		expected Source
	}{
		{"youtube", SourceYouTube},
		{"YouTube", SourceYouTube},
		{" spotify ", SourceSpotify},
		{"youtube_music", SourceYouTubeMusic},
		{"http", SourceHTTP},
		{"deezer", SourceUnknown},
		{"", SourceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSource(tt.input))
		})
	}
}

func TestTrack_Artwork(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "reported artwork wins",
			track:    Track{ArtworkURL: "https://example.com/a.jpg", Source: SourceYouTube, Identifier: "abc"},
			expected: "https://example.com/a.jpg",
		},
		{
			name:     "youtube thumbnail derived",
			track:    Track{Source: SourceYouTube, Identifier: "dQw4w9WgXcQ"},
			expected: "https://img.youtube.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
		},
		{
			name:     "no artwork for soundcloud",
			track:    Track{Source: SourceSoundCloud, Identifier: "123"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.Artwork())
		})
	}
}

func TestTrack_Comparable(t *testing.T) {
	a := Track{ID: "x", Title: "Song", Duration: 3 * time.Minute}
	b := a
	assert.Equal(t, a, b)
	assert.True(t, a == b)

	b.Title = "Other"
	assert.False(t, a == b)
	assert.False(t, a.Playable())
	assert.Equal(t, "Song", a.String())
}

func TestPlaylist(t *testing.T) {
	p := Playlist{
		Name:          "mix",
		SelectedTrack: 1,
		Tracks: []Track{
			{ID: "1", Duration: time.Minute},
			{ID: "2", Duration: 2 * time.Minute},
		},
	}

	sel, ok := p.Selected()
	assert.True(t, ok)
	assert.Equal(t, "2", sel.ID)
	assert.Equal(t, 3*time.Minute, p.Duration())

	p.SelectedTrack = -1
	sel, ok = p.Selected()
	assert.True(t, ok)
	assert.Equal(t, "1", sel.ID)

	_, ok = Playlist{}.Selected()
	assert.False(t, ok)
}
