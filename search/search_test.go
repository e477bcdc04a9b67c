package search

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/soundlink/catalog"
	"github.com/osa030/soundlink/rest"
	"github.com/osa030/soundlink/track"
)

type fakeLoader struct {
	results    map[string]*rest.LoadResult
	err        error
	identifier []string
}

func (l *fakeLoader) LoadTracks(_ context.Context, identifier string) (*rest.LoadResult, error) {
	l.identifier = append(l.identifier, identifier)
	if l.err != nil {
		return nil, l.err
	}
	if r, ok := l.results[identifier]; ok {
		return r, nil
	}
	return &rest.LoadResult{LoadType: track.LoadTypeNoMatch}, nil
}

type fakeCatalog struct {
	result catalog.Result
	err    error
	opts   catalog.Options
	query  string
}

func (c *fakeCatalog) Search(_ context.Context, query string, opts catalog.Options) (catalog.Result, error) {
	c.query = query
	c.opts = opts
	return c.result, c.err
}

func loaded(encoded ...string) []rest.LoadedTrack {
	out := make([]rest.LoadedTrack, 0, len(encoded))
	for _, e := range encoded {
		out = append(out, rest.LoadedTrack{Encoded: e, Info: rest.TrackInfo{Title: e, Length: 200000, SourceName: "youtube"}})
	}
	return out
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		query  string
		source track.Source
		want   string
	}{
		{query: "lofi", source: track.SourceUnknown, want: "ytsearch:lofi"},
		{query: "lofi", source: track.SourceYouTube, want: "ytsearch:lofi"},
		{query: "lofi", source: track.SourceYouTubeMusic, want: "ytmsearch:lofi"},
		{query: "lofi", source: track.SourceSoundCloud, want: "scsearch:lofi"},
		{query: "https://soundcloud.com/a/b", source: track.SourceYouTube, want: "https://soundcloud.com/a/b"},
		{query: "http://www.example.com/stream.mp3", source: track.SourceSoundCloud, want: "http://www.example.com/stream.mp3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.query, tt.source), tt.query)
	}
}

func TestClient_SearchText(t *testing.T) {
	loader := &fakeLoader{results: map[string]*rest.LoadResult{
		"scsearch:lofi": {LoadType: track.LoadTypeSearch, Tracks: loaded("a", "b", "c")},
	}}
	c := New(loader, nil)

	res, err := c.Search(context.Background(), " lofi ", Options{Source: track.SourceSoundCloud, Limit: 2})
	require.NoError(t, err)

	assert.False(t, res.IsPlaylist())
	require.Len(t, res.Tracks, 2)
	first, ok := res.First()
	require.True(t, ok)
	assert.Equal(t, "a", first.Encoded)
	assert.Equal(t, []string{"scsearch:lofi"}, loader.identifier)
}

func TestClient_SearchPlaylistURL(t *testing.T) {
	url := "https://www.youtube.com/playlist?list=PL1"
	loader := &fakeLoader{results: map[string]*rest.LoadResult{
		url: {
			LoadType:     track.LoadTypePlaylist,
			PlaylistInfo: &rest.PlaylistInfo{Name: "Mix", SelectedTrack: 1},
			Tracks:       loaded("a", "b", "c"),
		},
	}}
	c := New(loader, nil)

	res, err := c.Search(context.Background(), url, Options{Limit: 1})
	require.NoError(t, err)

	require.True(t, res.IsPlaylist())
	assert.Equal(t, "Mix", res.Playlist.Name)
	assert.Equal(t, url, res.Playlist.URI)
	assert.Len(t, res.Tracks, 3, "playlists are not truncated")
	first, _ := res.First()
	assert.Equal(t, "b", first.Encoded)
}

func TestClient_SearchFailures(t *testing.T) {
	tests := []struct {
		name   string
		result *rest.LoadResult
		want   error
	}{
		{
			name:   "no matches",
			result: &rest.LoadResult{LoadType: track.LoadTypeNoMatch},
			want:   ErrNoMatches,
		},
		{
			name:   "empty search result",
			result: &rest.LoadResult{LoadType: track.LoadTypeSearch},
			want:   ErrNoMatches,
		},
		{
			name:   "load failed",
			result: &rest.LoadResult{LoadType: track.LoadTypeFailed, Exception: &rest.LoadException{Message: "video unavailable"}},
			want:   ErrLoadFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &fakeLoader{results: map[string]*rest.LoadResult{"ytsearch:x": tt.result}}
			_, err := New(loader, nil).Search(context.Background(), "x", Options{})
			assert.True(t, errors.Is(err, tt.want), "err=%v", err)
		})
	}

	_, err := New(&fakeLoader{}, nil).Search(context.Background(), "   ", Options{})
	assert.True(t, errors.Is(err, ErrNoMatches))
}

func TestClient_LoadFailedCarriesMessage(t *testing.T) {
	loader := &fakeLoader{results: map[string]*rest.LoadResult{
		"ytsearch:x": {LoadType: track.LoadTypeFailed, Exception: &rest.LoadException{Message: "video unavailable"}},
	}}
	_, err := New(loader, nil).Search(context.Background(), "x", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video unavailable")
}

func TestClient_SearchCatalog(t *testing.T) {
	spotifyTrack := track.Track{ID: "t1", Title: "Song", Author: "Artist", Source: track.SourceSpotify}
	cat := &fakeCatalog{result: catalog.Result{Tracks: []track.Track{spotifyTrack}}}
	loader := &fakeLoader{}
	c := New(loader, cat)

	res, err := c.Search(context.Background(), "spotify:track:t1", Options{Suppress: true})
	require.NoError(t, err)

	assert.Equal(t, []track.Track{spotifyTrack}, res.Tracks)
	assert.Equal(t, "spotify:track:t1", cat.query)
	assert.True(t, cat.opts.Suppress)
	assert.Empty(t, loader.identifier, "catalog refs never reach the node")

	_, err = c.Search(context.Background(), "song artist", Options{Source: track.SourceSpotify, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, "song artist", cat.query)
	assert.Equal(t, 3, cat.opts.Limit)
}

func TestClient_SearchCatalogErrors(t *testing.T) {
	_, err := New(&fakeLoader{}, nil).Search(context.Background(), "spotify:track:t1", Options{})
	assert.True(t, errors.Is(err, ErrNoCatalog))

	cat := &fakeCatalog{err: errors.Wrap(catalog.ErrRateLimited, "budget")}
	_, err = New(&fakeLoader{}, cat).Search(context.Background(), "spotify:track:t1", Options{Suppress: true})
	assert.True(t, errors.Is(err, catalog.ErrRateLimited))

	cat = &fakeCatalog{err: errors.Wrap(catalog.ErrNotFound, "404")}
	_, err = New(&fakeLoader{}, cat).Search(context.Background(), "spotify:track:t1", Options{})
	assert.True(t, errors.Is(err, ErrNoMatches))

	cat = &fakeCatalog{}
	_, err = New(&fakeLoader{}, cat).Search(context.Background(), "spotify:playlist:empty", Options{})
	assert.True(t, errors.Is(err, ErrNoMatches))
}

func TestClient_Resolve(t *testing.T) {
	live := rest.LoadedTrack{Encoded: "live", Info: rest.TrackInfo{Title: "Song live", Length: 3600000, Stream: true}}
	good := rest.LoadedTrack{Encoded: "good", Info: rest.TrackInfo{Title: "Song", Length: 201000}}
	loader := &fakeLoader{results: map[string]*rest.LoadResult{
		"ytsearch:Song Artist audio": {LoadType: track.LoadTypeSearch, Tracks: []rest.LoadedTrack{live, good}},
	}}
	c := New(loader, nil)

	catalogTrack := track.Track{ID: "t1", Title: "Song", Author: "Artist", Duration: 200 * time.Second, Source: track.SourceSpotify}
	got, err := c.Resolve(context.Background(), catalogTrack)
	require.NoError(t, err)
	assert.Equal(t, "good", got.Encoded)

	// already playable
	got, err = c.Resolve(context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, "good", got.Encoded)
	assert.Len(t, loader.identifier, 1)

	_, err = c.Resolve(context.Background(), track.Track{Title: "Missing", Source: track.SourceSpotify})
	assert.True(t, errors.Is(err, ErrNoMatches))
}

func TestClient_ResolveFallsBackToFirst(t *testing.T) {
	loader := &fakeLoader{results: map[string]*rest.LoadResult{
		"ytsearch:Song Artist audio": {LoadType: track.LoadTypeSearch, Tracks: loaded("first", "second")},
	}}
	got, err := New(loader, nil).Resolve(context.Background(), track.Track{Title: "Song", Author: "Artist", Duration: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "first", got.Encoded)
}

func TestResult_FirstEmpty(t *testing.T) {
	_, ok := Result{}.First()
	assert.False(t, ok)
}
