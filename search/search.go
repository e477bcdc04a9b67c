// Package search resolves user queries into tracks, routing free text to the
// node's search sources and catalog references to the catalog client.
package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/soundlink/catalog"
	"github.com/osa030/soundlink/rest"
	"github.com/osa030/soundlink/track"
)

// Errors
var (
	ErrNoMatches  = errors.New("no matches found")
	ErrLoadFailed = errors.New("node failed to load the query")
	ErrNoCatalog  = errors.New("catalog search is not configured")
)

var urlPattern = regexp.MustCompile(`^https?://(?:www\.)?.+`)

// Loader loads identifiers on a node. *rest.Client implements it.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (*rest.LoadResult, error)
}

// Catalog looks queries up in an external catalog. *catalog.Client
// implements it.
type Catalog interface {
	Search(ctx context.Context, query string, opts catalog.Options) (catalog.Result, error)
}

// Options control a single search.
type Options struct {
	Source   track.Source // search source for free text, default YouTube
	Suppress bool         // fail fast on catalog rate limits
	Limit    int          // maximum tracks returned, 0 is unlimited
}

// Result is a search result. Playlist is set when the query loaded a
// playlist or album, and then Tracks holds its tracks.
type Result struct {
	Tracks   []track.Track
	Playlist *track.Playlist
}

// First returns the selected playlist track or the first result.
func (r Result) First() (track.Track, bool) {
	if r.Playlist != nil {
		return r.Playlist.Selected()
	}
	if len(r.Tracks) == 0 {
		return track.Track{}, false
	}
	return r.Tracks[0], true
}

// IsPlaylist reports whether the query loaded a playlist.
func (r Result) IsPlaylist() bool {
	return r.Playlist != nil
}

// Client searches through a node and an optional catalog.
type Client struct {
	loader  Loader
	catalog Catalog
}

// New creates a search client. cat may be nil.
func New(loader Loader, cat Catalog) *Client {
	return &Client{loader: loader, catalog: cat}
}

// Search resolves a query. URLs go to the node unchanged except catalog
// references, which go to the catalog. Free text is prefixed for the source.
func (c *Client) Search(ctx context.Context, query string, opts Options) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, errors.Wrap(ErrNoMatches, "empty query")
	}

	var (
		res Result
		err error
	)
	if catalog.IsCatalogRef(query) || opts.Source == track.SourceSpotify {
		res, err = c.searchCatalog(ctx, query, opts)
	} else {
		res, err = c.load(ctx, Sanitize(query, opts.Source), query)
	}
	if err != nil {
		return Result{}, err
	}

	if opts.Limit > 0 && res.Playlist == nil && len(res.Tracks) > opts.Limit {
		res.Tracks = res.Tracks[:opts.Limit]
	}
	return res, nil
}

// Sanitize prefixes free text with the search prefix of source. URLs are
// returned unchanged.
func Sanitize(query string, source track.Source) string {
	if urlPattern.MatchString(query) {
		return query
	}
	switch source {
	case track.SourceYouTubeMusic:
		return "ytmsearch:" + query
	case track.SourceSoundCloud:
		return "scsearch:" + query
	default:
		return "ytsearch:" + query
	}
}

func (c *Client) load(ctx context.Context, identifier, query string) (Result, error) {
	resp, err := c.loader.LoadTracks(ctx, identifier)
	if err != nil {
		return Result{}, err
	}

	switch resp.LoadType {
	case track.LoadTypeFailed:
		msg := "unknown error"
		if resp.Exception != nil {
			msg = resp.Exception.Message
		}
		zlog.Warn().Msgf("search failed: query=%q message=%s", query, msg)
		return Result{}, errors.Wrapf(ErrLoadFailed, "query=%q: %s", query, msg)
	case track.LoadTypeNoMatch:
		return Result{}, errors.Wrapf(ErrNoMatches, "query=%q", query)
	}
	if len(resp.Tracks) == 0 {
		return Result{}, errors.Wrapf(ErrNoMatches, "query=%q", query)
	}

	zlog.Debug().Msgf("search: query=%q load_type=%s tracks=%d", query, resp.LoadType, len(resp.Tracks))
	if resp.LoadType == track.LoadTypePlaylist {
		p := resp.Playlist(query)
		return Result{Tracks: p.Tracks, Playlist: &p}, nil
	}
	return Result{Tracks: resp.TrackList()}, nil
}

func (c *Client) searchCatalog(ctx context.Context, query string, opts Options) (Result, error) {
	if c.catalog == nil {
		return Result{}, errors.Wrapf(ErrNoCatalog, "query=%q", query)
	}
	res, err := c.catalog.Search(ctx, query, catalog.Options{Suppress: opts.Suppress, Limit: opts.Limit})
	if errors.Is(err, catalog.ErrNotFound) {
		return Result{}, errors.Mark(err, ErrNoMatches)
	}
	if err != nil {
		return Result{}, err
	}
	if len(res.Tracks) == 0 {
		return Result{}, errors.Wrapf(ErrNoMatches, "query=%q", query)
	}
	return Result{Tracks: res.Tracks, Playlist: res.Playlist}, nil
}

// Resolve finds a playable node track for a catalog track by searching
// YouTube for "<title> <author> audio".
func (c *Client) Resolve(ctx context.Context, t track.Track) (track.Track, error) {
	if t.Playable() {
		return t, nil
	}
	query := fmt.Sprintf("%s %s audio", t.Title, t.Author)
	res, err := c.load(ctx, Sanitize(query, track.SourceYouTube), query)
	if err != nil {
		return track.Track{}, err
	}

	// Prefer a non-stream result of comparable length.
	best, ok := lo.Find(res.Tracks, func(c track.Track) bool {
		return !c.Stream && closeEnough(c, t)
	})
	if !ok {
		best = res.Tracks[0]
	}
	zlog.Debug().Msgf("resolved: track=%q to=%q", t, best)
	return best, nil
}

// closeEnough reports whether candidate's length is within 10% of want's.
func closeEnough(candidate, want track.Track) bool {
	if want.Duration <= 0 || candidate.Duration <= 0 {
		return true
	}
	diff := candidate.Duration - want.Duration
	if diff < 0 {
		diff = -diff
	}
	return diff*10 <= want.Duration
}
