package queue

import (
	"math/rand/v2"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/osa030/soundlink/track"
)

// sequence holds the entries shared by Queue and PointerQueue.
// It is not safe for concurrent use; callers hold their own lock.
type sequence struct {
	items   []track.Track
	loop    LoopMode
	maxSize int
	shuffle func(n int, swap func(i, j int))
}

func newSequence(opts []Option) sequence {
	s := sequence{shuffle: rand.Shuffle}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s *sequence) room(n int) error {
	if s.maxSize > 0 && len(s.items)+n > s.maxSize {
		return errors.Wrapf(ErrQueueFull, "max=%d len=%d adding=%d", s.maxSize, len(s.items), n)
	}
	return nil
}

func (s *sequence) append(tracks ...track.Track) error {
	if err := s.room(len(tracks)); err != nil {
		return err
	}
	s.items = append(s.items, tracks...)
	return nil
}

func (s *sequence) insert(index int, t track.Track) error {
	if index < 0 || index > len(s.items) {
		return errors.Wrapf(ErrOutOfRange, "index=%d len=%d", index, len(s.items))
	}
	if err := s.room(1); err != nil {
		return err
	}
	s.items = slices.Insert(s.items, index, t)
	return nil
}

func (s *sequence) remove(index int) (track.Track, error) {
	if index < 0 || index >= len(s.items) {
		return track.Track{}, errors.Wrapf(ErrOutOfRange, "index=%d len=%d", index, len(s.items))
	}
	t := s.items[index]
	s.items = slices.Delete(s.items, index, index+1)
	return t, nil
}

func (s *sequence) indexOf(t track.Track) (int, error) {
	i := slices.Index(s.items, t)
	if i < 0 {
		return -1, errors.Wrapf(ErrNotFound, "track=%q", t.Title)
	}
	return i, nil
}

func (s *sequence) at(index int) (track.Track, error) {
	if index < 0 || index >= len(s.items) {
		return track.Track{}, errors.Wrapf(ErrOutOfRange, "index=%d len=%d", index, len(s.items))
	}
	return s.items[index], nil
}

// shuffleFrom permutes items[from:] in place.
func (s *sequence) shuffleFrom(from int) {
	tail := s.items[from:]
	s.shuffle(len(tail), func(i, j int) {
		tail[i], tail[j] = tail[j], tail[i]
	})
}

func (s *sequence) snapshot(from, to int) []track.Track {
	return slices.Clone(s.items[from:to])
}
