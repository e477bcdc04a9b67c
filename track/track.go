// Package track provides the Track and Playlist value types shared by the
// search, queue and player packages.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies where a track was resolved from.
type Source string

const (
	SourceUnknown      Source = ""
	SourceYouTube      Source = "youtube"
	SourceYouTubeMusic Source = "youtube_music"
	SourceSoundCloud   Source = "soundcloud"
	SourceSpotify      Source = "spotify"
	SourceYarn         Source = "yarn"
	SourceBandcamp     Source = "bandcamp"
	SourceTwitch       Source = "twitch"
	SourceVimeo        Source = "vimeo"
	SourceNico         Source = "nico"
	SourceLocal        Source = "local"
	SourceHTTP         Source = "http"
)

var knownSources = []Source{
	SourceYouTube, SourceYouTubeMusic, SourceSoundCloud, SourceSpotify, SourceYarn,
	SourceBandcamp, SourceTwitch, SourceVimeo, SourceNico, SourceLocal, SourceHTTP,
}

// ParseSource converts a source name reported by a node or given by a user.
// Unknown names map to SourceUnknown.
func ParseSource(s string) Source {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, src := range knownSources {
		if string(src) == s {
			return src
		}
	}
	return SourceUnknown
}

// FromCatalog reports whether tracks of this source need to be resolved
// against a node before they can be played.
func (s Source) FromCatalog() bool {
	return s == SourceSpotify
}

// Track represents a playable (or resolvable) audio track.
// Track is a value type; copies are independent and comparable with ==.
type Track struct {
	ID         string        // Opaque track ID (encoded track for node tracks, catalog ID for catalog tracks)
	Encoded    string        // Server encoded form used to replay the track, empty until resolved
	Identifier string        // Source specific identifier (e.g. YouTube video ID)
	Title      string        // Track title
	Author     string        // Author or artists
	URI        string        // Canonical URL
	Duration   time.Duration // Track length
	Position   time.Duration // Start offset reported by the node
	ArtworkURL string        // Artwork URL
	Source     Source        // Where the track came from
	Seekable   bool          // Whether seek is supported
	Stream     bool          // Live stream flag
}

// Playable reports whether the track can be sent to a node as-is.
func (t Track) Playable() bool {
	return t.Encoded != ""
}

// Artwork returns the artwork URL, deriving a thumbnail for YouTube tracks
// when none was reported.
func (t Track) Artwork() string {
	if t.ArtworkURL != "" {
		return t.ArtworkURL
	}
	if (t.Source == SourceYouTube || t.Source == SourceYouTubeMusic) && t.Identifier != "" {
		return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", t.Identifier)
	}
	return ""
}

// String returns "Title - Author".
func (t Track) String() string {
	if t.Author == "" {
		return t.Title
	}
	return t.Title + " - " + t.Author
}

// Playlist represents a named, ordered collection of tracks.
type Playlist struct {
	Name          string  // Playlist name
	URI           string  // Canonical URL
	SelectedTrack int     // Index of the track the query pointed at, -1 if none
	Tracks        []Track // Tracks in order
}

// Selected returns the selected track, falling back to the first track.
func (p Playlist) Selected() (Track, bool) {
	if len(p.Tracks) == 0 {
		return Track{}, false
	}
	if p.SelectedTrack >= 0 && p.SelectedTrack < len(p.Tracks) {
		return p.Tracks[p.SelectedTrack], true
	}
	return p.Tracks[0], true
}

// Duration returns the total length of all tracks.
func (p Playlist) Duration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// LoadType describes the shape of a node load result.
type LoadType string

const (
	LoadTypeTrack    LoadType = "TRACK_LOADED"
	LoadTypePlaylist LoadType = "PLAYLIST_LOADED"
	LoadTypeSearch   LoadType = "SEARCH_RESULT"
	LoadTypeNoMatch  LoadType = "NO_MATCHES"
	LoadTypeFailed   LoadType = "LOAD_FAILED"
)
