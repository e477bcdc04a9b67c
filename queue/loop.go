// Package queue provides the track queues that feed a player.
//
// Queue is a destructive FIFO: Pop removes what it returns (subject to the
// loop mode). PointerQueue keeps every entry and walks a cursor over them,
// which makes history and "previous" possible.
package queue

import "github.com/cockroachdb/errors"

// Errors
var (
	ErrOutOfRange = errors.New("queue index out of range")
	ErrNotFound   = errors.New("track not found in queue")
	ErrEndOfQueue = errors.New("end of queue")
	ErrQueueFull  = errors.New("queue is full")
)

// LoopMode controls what happens when a track is consumed.
type LoopMode int

const (
	LoopNone  LoopMode = iota // Play through once
	LoopTrack                 // Repeat the current track
	LoopQueue                 // Wrap around to the start
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopNone:
		return "none"
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseLoopMode parses "none", "track" or "queue".
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "none", "":
		return LoopNone, nil
	case "track":
		return LoopTrack, nil
	case "queue":
		return LoopQueue, nil
	default:
		return LoopNone, errors.Newf("unknown loop mode: %s", s)
	}
}

// Option configures a queue.
type Option func(*sequence)

// WithMaxSize limits the number of entries. Zero means unlimited.
func WithMaxSize(n int) Option {
	return func(s *sequence) {
		s.maxSize = n
	}
}

// WithShuffler replaces the permutation source, mainly for tests.
func WithShuffler(fn func(n int, swap func(i, j int))) Option {
	return func(s *sequence) {
		s.shuffle = fn
	}
}
