package rest

import (
	"time"

	"github.com/osa030/soundlink/track"
)

// TrackInfo is the track metadata reported by a node.
type TrackInfo struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri"`
	Identifier string `json:"identifier"`
	Length     int64  `json:"length"`   // milliseconds
	Position   int64  `json:"position"` // milliseconds
	Stream     bool   `json:"is_stream"`
	Seekable   bool   `json:"is_seekable"`
	SourceName string `json:"source_name"`
	Thumbnail  string `json:"thumbnail"`
}

// Track converts the metadata into a track carrying encoded.
func (i TrackInfo) Track(encoded string) track.Track {
	return track.Track{
		ID:         encoded,
		Encoded:    encoded,
		Identifier: i.Identifier,
		Title:      i.Title,
		Author:     i.Author,
		URI:        i.URI,
		Duration:   time.Duration(i.Length) * time.Millisecond,
		Position:   time.Duration(i.Position) * time.Millisecond,
		ArtworkURL: i.Thumbnail,
		Source:     track.ParseSource(i.SourceName),
		Seekable:   i.Seekable,
		Stream:     i.Stream,
	}
}

// LoadedTrack is one entry of a load result.
type LoadedTrack struct {
	Encoded string    `json:"track"`
	Info    TrackInfo `json:"info"`
}

// PlaylistInfo describes a loaded playlist.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selected_track"`
}

// LoadException is the node's reason for LOAD_FAILED.
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// LoadResult is the response of /loadtracks.
type LoadResult struct {
	LoadType     track.LoadType `json:"load_type"`
	PlaylistInfo *PlaylistInfo  `json:"playlist_info"`
	Tracks       []LoadedTrack  `json:"tracks"`
	Exception    *LoadException `json:"exception"`
}

// TrackList converts the loaded entries.
func (r *LoadResult) TrackList() []track.Track {
	tracks := make([]track.Track, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		tracks = append(tracks, t.Info.Track(t.Encoded))
	}
	return tracks
}

// Playlist converts a PLAYLIST_LOADED result. uri is the query that loaded it.
func (r *LoadResult) Playlist(uri string) track.Playlist {
	p := track.Playlist{URI: uri, SelectedTrack: -1, Tracks: r.TrackList()}
	if r.PlaylistInfo != nil {
		p.Name = r.PlaylistInfo.Name
		p.SelectedTrack = r.PlaylistInfo.SelectedTrack
	}
	return p
}
