package link

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: exponential from Base, capped at Max,
// with full jitter: each delay is uniform in [0, ceiling].
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	jitter func(n int64) int64
}

// Delay returns the wait before the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if d <= 0 {
		return 0
	}

	jitter := b.jitter
	if jitter == nil {
		jitter = rand.Int64N
	}
	return time.Duration(jitter(int64(d) + 1))
}
