package queue

import (
	"sync"

	"github.com/osa030/soundlink/track"
)

// Queue is a mutable FIFO of tracks. Safe for concurrent use.
type Queue struct {
	mu  sync.RWMutex
	seq sequence
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	return &Queue{seq: newSequence(opts)}
}

// Append adds a track to the tail.
func (q *Queue) Append(t track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.append(t)
}

// AppendMany adds tracks to the tail in order. Nothing is added if the
// queue would overflow.
func (q *Queue) AppendMany(tracks []track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.append(tracks...)
}

// AppendPlaylist adds every track of the playlist.
func (q *Queue) AppendPlaylist(p track.Playlist) error {
	return q.AppendMany(p.Tracks)
}

// Insert places a track at index, shifting later entries.
func (q *Queue) Insert(index int, t track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.insert(index, t)
}

// Remove deletes the entry at index and returns it.
func (q *Queue) Remove(index int) (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.remove(index)
}

// RemoveTrack deletes the first entry equal to t.
func (q *Queue) RemoveTrack(t track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, err := q.seq.indexOf(t)
	if err != nil {
		return err
	}
	_, err = q.seq.remove(i)
	return err
}

// Clear removes every entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.items = nil
}

// Shuffle permutes all entries uniformly.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.shuffleFrom(0)
}

// SetLoop sets the loop mode applied by Pop.
func (q *Queue) SetLoop(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.loop = mode
}

// Loop returns the current loop mode.
func (q *Queue) Loop() LoopMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.loop
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.seq.items)
}

// At returns the entry at index without removing it.
func (q *Queue) At(index int) (track.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.at(index)
}

// Tracks returns a copy of all entries.
func (q *Queue) Tracks() []track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.snapshot(0, len(q.seq.items))
}

// Peek returns the head without consuming it.
func (q *Queue) Peek() (track.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.seq.items) == 0 {
		return track.Track{}, ErrEndOfQueue
	}
	return q.seq.items[0], nil
}

// Pop consumes the head according to the loop mode:
// LoopNone removes it, LoopTrack leaves it in place and LoopQueue moves it
// to the tail.
func (q *Queue) Pop() (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.seq.items) == 0 {
		return track.Track{}, ErrEndOfQueue
	}

	head := q.seq.items[0]
	switch q.seq.loop {
	case LoopTrack:
	case LoopQueue:
		q.seq.items = append(q.seq.items[1:], head)
	default:
		q.seq.items = q.seq.items[1:]
	}
	return head, nil
}
