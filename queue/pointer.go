package queue

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/osa030/soundlink/track"
)

// PointerQueue is a queue that is never consumed destructively. A cursor in
// [0, Len] marks the next entry; entries before it form the history and the
// entry right before it is the current track. Safe for concurrent use.
type PointerQueue struct {
	mu     sync.RWMutex
	seq    sequence
	cursor int
}

// NewPointer creates an empty pointer queue.
func NewPointer(opts ...Option) *PointerQueue {
	return &PointerQueue{seq: newSequence(opts)}
}

// Append adds a track to the tail.
func (q *PointerQueue) Append(t track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.append(t)
}

// AppendMany adds tracks to the tail in order.
func (q *PointerQueue) AppendMany(tracks []track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.append(tracks...)
}

// AppendPlaylist adds every track of the playlist.
func (q *PointerQueue) AppendPlaylist(p track.Playlist) error {
	return q.AppendMany(p.Tracks)
}

// Insert places a track at index. The cursor keeps pointing at the same
// upcoming entry.
func (q *PointerQueue) Insert(index int, t track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.seq.insert(index, t); err != nil {
		return err
	}
	if index < q.cursor {
		q.cursor++
	}
	return nil
}

// Remove deletes the entry at index. The cursor keeps pointing at the same
// upcoming entry.
func (q *PointerQueue) Remove(index int) (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(index)
}

// RemoveTrack deletes the first entry equal to t.
func (q *PointerQueue) RemoveTrack(t track.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, err := q.seq.indexOf(t)
	if err != nil {
		return err
	}
	_, err = q.removeLocked(i)
	return err
}

func (q *PointerQueue) removeLocked(index int) (track.Track, error) {
	t, err := q.seq.remove(index)
	if err != nil {
		return track.Track{}, err
	}
	if index < q.cursor {
		q.cursor--
	}
	return t, nil
}

// Clear removes every entry and rewinds the cursor.
func (q *PointerQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.items = nil
	q.cursor = 0
}

// Rewind moves the cursor back to the start without touching the entries.
func (q *PointerQueue) Rewind() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cursor = 0
}

// Shuffle permutes the entries. With excludeConsumed only the entries at or
// after the cursor move; otherwise everything is permuted and the cursor
// index is left as is.
func (q *PointerQueue) Shuffle(excludeConsumed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if excludeConsumed {
		q.seq.shuffleFrom(q.cursor)
		return
	}
	q.seq.shuffleFrom(0)
}

// SetLoop sets the loop mode applied by Advance and Retreat.
func (q *PointerQueue) SetLoop(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.loop = mode
}

// Loop returns the current loop mode.
func (q *PointerQueue) Loop() LoopMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.loop
}

// Len returns the number of entries, consumed or not.
func (q *PointerQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.seq.items)
}

// Cursor returns the index of the next entry.
func (q *PointerQueue) Cursor() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cursor
}

// At returns the entry at index.
func (q *PointerQueue) At(index int) (track.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.at(index)
}

// Tracks returns a copy of all entries.
func (q *PointerQueue) Tracks() []track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.snapshot(0, len(q.seq.items))
}

// Upcoming returns a copy of the entries at or after the cursor.
func (q *PointerQueue) Upcoming() []track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.snapshot(q.cursor, len(q.seq.items))
}

// History returns a copy of the consumed entries.
func (q *PointerQueue) History() []track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.seq.snapshot(0, q.cursor)
}

// Current returns the most recently consumed entry.
func (q *PointerQueue) Current() (track.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.cursor == 0 || q.cursor > len(q.seq.items) {
		return track.Track{}, false
	}
	return q.seq.items[q.cursor-1], true
}

// PeekNext returns what Advance would return without moving the cursor.
func (q *PointerQueue) PeekNext() (track.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	idx, err := q.nextIndexLocked(q.seq.loop)
	if err != nil {
		return track.Track{}, err
	}
	return q.seq.items[idx], nil
}

// Advance consumes the next entry.
// At the end of the queue LoopNone returns ErrEndOfQueue, LoopTrack keeps
// returning the current entry and LoopQueue wraps to index 0.
func (q *PointerQueue) Advance() (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advanceLocked(q.seq.loop)
}

// Skip consumes the next entry, ignoring LoopTrack.
func (q *PointerQueue) Skip() (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mode := q.seq.loop
	if mode == LoopTrack {
		mode = LoopNone
	}
	return q.advanceLocked(mode)
}

func (q *PointerQueue) advanceLocked(mode LoopMode) (track.Track, error) {
	idx, err := q.nextIndexLocked(mode)
	if err != nil {
		return track.Track{}, err
	}
	q.cursor = idx + 1
	return q.seq.items[idx], nil
}

// nextIndexLocked returns the index of the entry the next advance yields.
func (q *PointerQueue) nextIndexLocked(mode LoopMode) (int, error) {
	n := len(q.seq.items)
	if n == 0 {
		return -1, ErrEndOfQueue
	}

	if mode == LoopTrack && q.cursor > 0 {
		return min(q.cursor, n) - 1, nil
	}
	if q.cursor < n {
		return q.cursor, nil
	}
	if mode == LoopQueue {
		return 0, nil
	}
	return -1, ErrEndOfQueue
}

// Retreat moves back to the entry before the current one and returns it.
// At the start LoopQueue wraps to the last entry; other modes return
// ErrEndOfQueue.
func (q *PointerQueue) Retreat() (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.seq.items)
	if n == 0 {
		return track.Track{}, ErrEndOfQueue
	}

	if q.cursor >= 2 {
		q.cursor--
		return q.seq.items[q.cursor-1], nil
	}
	if q.seq.loop == LoopQueue {
		q.cursor = n
		return q.seq.items[n-1], nil
	}
	return track.Track{}, ErrEndOfQueue
}

// Jump makes the entry at index the current one and returns it.
func (q *PointerQueue) Jump(index int) (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.seq.at(index)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "jump")
	}
	q.cursor = index + 1
	return t, nil
}
