// Package rest is the HTTP client for a node's track loading endpoints.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/link"
	"github.com/osa030/soundlink/track"
)

// Errors
var (
	ErrUnauthorized = errors.New("node rejected the password")
)

// StatusError is returned when a node keeps answering with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client calls a node's REST endpoints.
type Client struct {
	BaseURL    string
	Password   string
	HTTPClient *http.Client
	MaxRetries int          // attempts per call, default 3
	Backoff    link.Backoff // delay between attempts
}

// New creates a client for baseURL with default retry settings.
func New(baseURL, password string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Password:   password,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
		Backoff:    link.Backoff{Base: time.Second, Max: 10 * time.Second},
	}
}

// LoadTracks resolves an identifier: a URL or a prefixed search query.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var result LoadResult
	q := url.Values{"identifier": {identifier}}
	if err := c.do(ctx, http.MethodGet, "/loadtracks", q, nil, &result); err != nil {
		return nil, errors.Wrapf(err, "failed to load tracks: identifier=%q", identifier)
	}
	return &result, nil
}

// DecodeTrack returns the metadata of an encoded track.
func (c *Client) DecodeTrack(ctx context.Context, encoded string) (track.Track, error) {
	var info TrackInfo
	q := url.Values{"track": {encoded}}
	if err := c.do(ctx, http.MethodGet, "/decodetrack", q, nil, &info); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to decode track")
	}
	return info.Track(encoded), nil
}

// DecodeTracks decodes several tracks in one call.
func (c *Client) DecodeTracks(ctx context.Context, encoded []string) ([]track.Track, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	var loaded []LoadedTrack
	if err := c.do(ctx, http.MethodPost, "/decodetracks", nil, encoded, &loaded); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %d tracks", len(encoded))
	}
	tracks := make([]track.Track, 0, len(loaded))
	for _, t := range loaded {
		tracks = append(tracks, t.Info.Track(t.Encoded))
	}
	return tracks, nil
}

func (c *Client) do(ctx context.Context, method, route string, query url.Values, payload, out any) error {
	u := c.BaseURL + route
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
	}

	attempts := max(c.MaxRetries, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, data, err := c.send(ctx, method, u, body)
		switch {
		case err != nil:
			// transport errors are not retried: the link owns reconnects
			return err
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return errors.Wrapf(ErrUnauthorized, "%s %s: status %d", method, route, status)
		case status >= 200 && status < 300:
			if err := json.Unmarshal(data, out); err != nil {
				return errors.Wrap(err, "failed to decode response")
			}
			return nil
		}

		lastErr = &StatusError{Method: method, URL: route, StatusCode: status, Body: strings.TrimSpace(string(data))}
		if attempt == attempts {
			break
		}
		delay := c.Backoff.Delay(attempt)
		zlog.Warn().Msgf("node request failed, retrying: method=%s route=%s status=%d delay=%s", method, route, status, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "retry wait")
		case <-timer.C:
		}
	}
	zlog.Error().Msgf("node request failed, retry limit exhausted: method=%s route=%s", method, route)
	return lastErr
}

func (c *Client) send(ctx context.Context, method, u string, body []byte) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", c.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Mark(errors.Wrap(err, "request failed"), link.ErrConnection)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Mark(errors.Wrap(err, "failed to read response"), link.ErrConnection)
	}
	return resp.StatusCode, data, nil
}
