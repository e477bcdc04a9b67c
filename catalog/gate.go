package catalog

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// Gate tracks the catalog's rate-limit budget from response headers and
// paces outgoing calls.
type Gate struct {
	mu        sync.Mutex
	remaining int // -1 when unknown
	reset     time.Time
	pacer     *rate.Limiter
	now       func() time.Time
}

// NewGate creates a gate that also limits calls to rps with the given burst.
// rps <= 0 disables pacing.
func NewGate(rps float64, burst int) *Gate {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Gate{
		remaining: -1,
		pacer:     rate.NewLimiter(limit, max(burst, 1)),
		now:       time.Now,
	}
}

// Wait takes one call from the budget. When the budget is spent it waits for
// the reset, or fails with ErrRateLimited if suppress is set.
func (g *Gate) Wait(ctx context.Context, suppress bool) error {
	for {
		g.mu.Lock()
		now := g.now()
		if g.remaining == 0 && !now.Before(g.reset) {
			g.remaining = -1
		}
		if g.remaining != 0 {
			if g.remaining > 0 {
				g.remaining--
			}
			g.mu.Unlock()
			break
		}
		wait := g.reset.Sub(now)
		g.mu.Unlock()

		if suppress {
			return errors.Wrapf(ErrRateLimited, "budget exhausted, resets in %s", wait.Round(time.Millisecond))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "rate limit wait")
		case <-timer.C:
		}
	}

	if suppress {
		if !g.pacer.Allow() {
			return errors.Wrap(ErrRateLimited, "request rate exceeded")
		}
		return nil
	}
	if err := g.pacer.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}
	return nil
}

// Remaining returns the known budget, -1 when unknown.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// Observe records the budget reported by a response.
func (g *Gate) Observe(status int, h http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	if v, err := strconv.Atoi(h.Get("X-RateLimit-Remaining")); err == nil {
		g.remaining = max(v, 0)
	}
	if v, err := strconv.ParseFloat(h.Get("X-RateLimit-Reset-After"), 64); err == nil {
		g.reset = now.Add(seconds(v))
	} else if v, err := strconv.ParseFloat(h.Get("X-RateLimit-Reset"), 64); err == nil {
		sec, frac := math.Modf(v)
		g.reset = time.Unix(int64(sec), int64(frac*1e9))
	}

	if status == http.StatusTooManyRequests {
		g.remaining = 0
		if v, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil {
			g.reset = now.Add(seconds(v))
		} else if !g.reset.After(now) {
			g.reset = now.Add(time.Second)
		}
	}

	// a spent budget without a known reset would block forever
	if g.remaining == 0 && g.reset.IsZero() {
		g.remaining = -1
	}
}

// Transport returns a RoundTripper that feeds every response to the gate.
func (g *Gate) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &observer{gate: g, base: base}
}

type observer struct {
	gate *Gate
	base http.RoundTripper
}

func (o *observer) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := o.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	o.gate.Observe(resp.StatusCode, resp.Header)
	return resp, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
