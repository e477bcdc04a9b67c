// Package catalog provides a client for the Spotify catalog. Catalog tracks
// carry metadata only and are resolved to node tracks before playback.
package catalog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/soundlink/track"
)

// Errors
var (
	ErrRateLimited    = errors.New("catalog rate limit reached")
	ErrAuthentication = errors.New("catalog rejected the client credentials")
	ErrNotFound       = errors.New("catalog entry not found")
)

// Config represents catalog client configuration.
type Config struct {
	ClientID          string        `mapstructure:"client_id" validate:"required"`
	ClientSecret      string        `mapstructure:"client_secret" validate:"required"`
	Market            string        `mapstructure:"market" default:"US"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" default:"10" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" default:"5" validate:"gte=1"`
	MaxRetries        int           `mapstructure:"max_retries" default:"3" validate:"gte=1"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" default:"1s"`
	TokenURL          string        `mapstructure:"token_url"` // default: Spotify accounts service
	APIURL            string        `mapstructure:"api_url"`   // default: Spotify Web API, must end with "/"
}

// Options control a single catalog call.
type Options struct {
	Suppress bool // fail with ErrRateLimited instead of waiting
	Limit    int  // free-text result limit, default 20, max 50
}

// Result is a catalog lookup result. Playlist is set for album and playlist
// queries.
type Result struct {
	Tracks   []track.Track
	Playlist *track.Playlist
}

// Client is a Spotify catalog client using client credentials.
type Client struct {
	client     *spotify.Client
	gate       *Gate
	market     string
	maxRetries int
	retryDelay time.Duration
}

// New creates a new catalog client. Tokens are fetched lazily and refreshed a
// minute before they expire.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set catalog defaults")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "catalog credentials are required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyauth.TokenURL
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokens := oauth2.ReuseTokenSourceWithExpiry(nil, &fetcher{ctx: ctx, creds: creds}, time.Minute)

	gate := NewGate(cfg.RequestsPerSecond, cfg.Burst)
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: tokens, Base: gate.Transport(nil)},
		Timeout:   30 * time.Second,
	}

	var opts []spotify.ClientOption
	if cfg.APIURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.APIURL))
	}

	return &Client{
		client:     spotify.New(httpClient, opts...),
		gate:       gate,
		market:     cfg.Market,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// fetcher requests a new token on every call; oauth2.ReuseTokenSourceWithExpiry
// memoises it.
type fetcher struct {
	ctx   context.Context
	creds *clientcredentials.Config
}

func (f *fetcher) Token() (*oauth2.Token, error) {
	zlog.Debug().Msg("refreshing catalog token")
	tok, err := f.creds.Token(f.ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to fetch catalog token"), ErrAuthentication)
	}
	return tok, nil
}

// Gate returns the client's rate-limit gate.
func (c *Client) Gate() *Gate {
	return c.gate
}

// Search looks a query up. Catalog URLs and URIs load the referenced track,
// album, playlist or artist top tracks; anything else is a free-text track
// search.
func (c *Client) Search(ctx context.Context, query string, opts Options) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, errors.New("search query is required")
	}

	kind, id := ParseQuery(query)
	zlog.Debug().Msgf("catalog search: kind=%s id=%s", kind, id)

	switch kind {
	case QueryTrack:
		t, err := c.GetTrack(ctx, id, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{Tracks: []track.Track{t}}, nil
	case QueryAlbum:
		p, err := c.GetAlbum(ctx, id, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{Tracks: p.Tracks, Playlist: &p}, nil
	case QueryPlaylist:
		p, err := c.GetPlaylist(ctx, id, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{Tracks: p.Tracks, Playlist: &p}, nil
	case QueryArtist:
		tracks, err := c.GetArtistTopTracks(ctx, id, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{Tracks: tracks}, nil
	default:
		tracks, err := c.SearchTracks(ctx, query, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{Tracks: tracks}, nil
	}
}

// GetTrack retrieves a track by ID.
func (c *Client) GetTrack(ctx context.Context, id string, opts Options) (track.Track, error) {
	var result *spotify.FullTrack
	err := c.retry(ctx, opts, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to get track: id=%s", id)
	}
	return convertTrack(&result.SimpleTrack, result.Album), nil
}

// SearchTracks runs a free-text track search.
func (c *Client) SearchTracks(ctx context.Context, query string, opts Options) ([]track.Track, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, opts, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&t.SimpleTrack, t.Album))
	}
	return tracks, nil
}

// GetAlbum retrieves an album and all of its tracks.
func (c *Client) GetAlbum(ctx context.Context, id string, opts Options) (track.Playlist, error) {
	var album *spotify.FullAlbum
	err := c.retry(ctx, opts, func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return track.Playlist{}, errors.Wrapf(err, "failed to get album: id=%s", id)
	}

	var tracks []track.Track
	offset := 0
	limit := 50
	for {
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, opts, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return track.Playlist{}, errors.Wrap(err, "failed to get album tracks")
		}

		for i := range page.Tracks {
			tracks = append(tracks, convertTrack(&page.Tracks[i], album.SimpleAlbum))
		}
		if len(page.Tracks) < limit || offset+len(page.Tracks) >= int(page.Total) {
			break
		}
		offset += limit
	}

	return track.Playlist{
		Name:          album.Name,
		URI:           externalURL(album.ExternalURLs, "album", id),
		SelectedTrack: -1,
		Tracks:        tracks,
	}, nil
}

// GetPlaylist retrieves a playlist and all of its tracks. Episodes are
// skipped.
func (c *Client) GetPlaylist(ctx context.Context, id string, opts Options) (track.Playlist, error) {
	var playlist *spotify.FullPlaylist
	err := c.retry(ctx, opts, func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(id), spotify.Fields("name,external_urls"))
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return track.Playlist{}, errors.Wrapf(err, "failed to get playlist: id=%s", id)
	}

	var tracks []track.Track
	offset := 0
	limit := 100
	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, opts, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return track.Playlist{}, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only tracks, episodes are not resolvable
			if t := item.Track.Track; t != nil && t.ID != "" {
				tracks = append(tracks, convertTrack(&t.SimpleTrack, t.Album))
			}
		}
		if len(page.Items) < limit || offset+len(page.Items) >= int(page.Total) {
			break
		}
		offset += limit
	}

	return track.Playlist{
		Name:          playlist.Name,
		URI:           externalURL(playlist.ExternalURLs, "playlist", id),
		SelectedTrack: -1,
		Tracks:        tracks,
	}, nil
}

// GetArtistTopTracks retrieves an artist's top tracks in the client's market.
func (c *Client) GetArtistTopTracks(ctx context.Context, id string, opts Options) ([]track.Track, error) {
	var result []spotify.FullTrack
	err := c.retry(ctx, opts, func() error {
		t, err := c.client.GetArtistsTopTracks(ctx, spotify.ID(id), c.market)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get artist top tracks: id=%s", id)
	}

	tracks := make([]track.Track, 0, len(result))
	for i := range result {
		tracks = append(tracks, convertTrack(&result[i].SimpleTrack, result[i].Album))
	}
	return tracks, nil
}

// retry runs fn behind the gate and retries rate-limit and server errors.
func (c *Client) retry(ctx context.Context, opts Options, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.gate.Wait(ctx, opts.Suppress); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = classify(err)

		if !isRetryable(lastErr) {
			return lastErr
		}

		if i < c.maxRetries-1 {
			delay := c.retryDelay * time.Duration(i+1)
			zlog.Debug().Msgf("catalog call failed, retrying: attempt=%d delay=%s err=%v", i+1, delay, err)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrap(ctx.Err(), "retry wait")
			case <-timer.C:
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// classify marks credential and not-found failures.
func classify(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) || errors.Is(err, ErrAuthentication) {
		return errors.Mark(err, ErrAuthentication)
	}
	var serr spotify.Error
	if errors.As(err, &serr) {
		switch serr.Status {
		case http.StatusUnauthorized:
			return errors.Mark(err, ErrAuthentication)
		case http.StatusNotFound:
			return errors.Mark(err, ErrNotFound)
		}
	}
	return err
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNotFound) {
		return false
	}
	var serr spotify.Error
	if errors.As(err, &serr) {
		return serr.Status == http.StatusTooManyRequests || serr.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// convertTrack converts a Spotify track to a catalog track.
func convertTrack(t *spotify.SimpleTrack, album spotify.SimpleAlbum) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var artwork string
	if len(album.Images) > 0 {
		artwork = album.Images[0].URL
	}

	return track.Track{
		ID:         string(t.ID),
		Identifier: string(t.ID),
		Title:      t.Name,
		Author:     strings.Join(artists, ", "),
		URI:        externalURL(t.ExternalURLs, "track", string(t.ID)),
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		ArtworkURL: artwork,
		Source:     track.SourceSpotify,
	}
}

func externalURL(urls map[string]string, kind, id string) string {
	if u := urls["spotify"]; u != "" {
		return u
	}
	return "https://open.spotify.com/" + kind + "/" + id
}
