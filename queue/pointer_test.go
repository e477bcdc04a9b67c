package queue

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointerQueue_AdvancePastEnd(t *testing.T) {
	tests := []struct {
		name    string
		mode    LoopMode
		wantID  string
		wantErr error
	}{
		{name: "none signals end", mode: LoopNone, wantErr: ErrEndOfQueue},
		{name: "track repeats", mode: LoopTrack, wantID: "t2"},
		{name: "queue wraps", mode: LoopQueue, wantID: "t0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPointer()
			require.NoError(t, q.AppendMany(tracks(3)))

			if tt.mode == LoopTrack {
				_, err := q.Jump(2)
				require.NoError(t, err)
			} else {
				for range 3 {
					_, err := q.Advance()
					require.NoError(t, err)
				}
			}
			assert.Equal(t, 3, q.Cursor())
			q.SetLoop(tt.mode)

			peeked, peekErr := q.PeekNext()
			got, err := q.Advance()
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.True(t, errors.Is(peekErr, tt.wantErr))
				assert.Equal(t, 3, q.Cursor())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, got, peeked)
			assert.Equal(t, []string{"t0", "t1", "t2"}, ids(q.Tracks()))
		})
	}
}

func TestPointerQueue_TrackLoopKeepsCursor(t *testing.T) {
	q := NewPointer()
	require.NoError(t, q.AppendMany(tracks(3)))
	q.SetLoop(LoopTrack)

	first, err := q.Advance()
	require.NoError(t, err)
	assert.Equal(t, "t0", first.ID)

	for range 3 {
		again, err := q.Advance()
		require.NoError(t, err)
		assert.Equal(t, "t0", again.ID)
		assert.Equal(t, 1, q.Cursor())
	}

	skipped, err := q.Skip()
	require.NoError(t, err)
	assert.Equal(t, "t1", skipped.ID)
}

func TestPointerQueue_AdvanceDoesNotMutate(t *testing.T) {
	q := NewPointer()
	require.NoError(t, q.AppendMany(tracks(3)))

	for i := range 3 {
		tr, err := q.Advance()
		require.NoError(t, err)
		assert.Equal(t, ids(tracks(3))[i], tr.ID)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"t0", "t1", "t2"}, ids(q.History()))
	assert.Empty(t, q.Upcoming())

	cur, ok := q.Current()
	assert.True(t, ok)
	assert.Equal(t, "t2", cur.ID)
}

func TestPointerQueue_Retreat(t *testing.T) {
	tests := []struct {
		name    string
		mode    LoopMode
		wantID  string
		wantErr bool
	}{
		{name: "none at start", mode: LoopNone, wantErr: true},
		{name: "track at start", mode: LoopTrack, wantErr: true},
		{name: "queue wraps to tail", mode: LoopQueue, wantID: "t2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPointer()
			require.NoError(t, q.AppendMany(tracks(3)))
			_, err := q.Advance()
			require.NoError(t, err)
			q.SetLoop(tt.mode)

			got, err := q.Retreat()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrEndOfQueue))
				assert.Equal(t, 1, q.Cursor())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, 3, q.Cursor())
		})
	}

	t.Run("steps back one", func(t *testing.T) {
		q := NewPointer()
		require.NoError(t, q.AppendMany(tracks(3)))
		_, _ = q.Advance()
		_, _ = q.Advance()

		got, err := q.Retreat()
		require.NoError(t, err)
		assert.Equal(t, "t0", got.ID)
		next, err := q.Advance()
		require.NoError(t, err)
		assert.Equal(t, "t1", next.ID)
	})
}

func TestPointerQueue_Jump(t *testing.T) {
	q := NewPointer()
	require.NoError(t, q.AppendMany(tracks(4)))

	got, err := q.Jump(2)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.ID)
	next, err := q.Advance()
	require.NoError(t, err)
	assert.Equal(t, "t3", next.ID)

	_, err = q.Jump(4)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = q.Jump(-1)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Equal(t, 4, q.Cursor())
}

func TestPointerQueue_RemoveAdjustsCursor(t *testing.T) {
	q := NewPointer()
	require.NoError(t, q.AppendMany(tracks(5)))
	_, _ = q.Advance()
	_, _ = q.Advance()

	_, err := q.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Cursor())
	next, err := q.PeekNext()
	require.NoError(t, err)
	assert.Equal(t, "t2", next.ID)

	_, err = q.Remove(3)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Cursor())
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(q.Tracks()))

	require.NoError(t, q.Insert(0, tracks(1)[0]))
	assert.Equal(t, 2, q.Cursor())
	next, err = q.PeekNext()
	require.NoError(t, err)
	assert.Equal(t, "t2", next.ID)
}

func TestPointerQueue_ShuffleExcludeConsumed(t *testing.T) {
	q := NewPointer(WithShuffler(reverse))
	require.NoError(t, q.AppendMany(tracks(5)))
	_, _ = q.Advance()
	_, _ = q.Advance()

	q.Shuffle(true)
	assert.Equal(t, []string{"t0", "t1", "t4", "t3", "t2"}, ids(q.Tracks()))
	assert.Equal(t, 2, q.Cursor())

	q.Shuffle(false)
	assert.Equal(t, []string{"t2", "t3", "t4", "t1", "t0"}, ids(q.Tracks()))
	assert.Equal(t, 2, q.Cursor())
}

func TestPointerQueue_CursorBounds(t *testing.T) {
	q := NewPointer()
	require.NoError(t, q.AppendMany(tracks(3)))
	q.SetLoop(LoopQueue)

	for range 10 {
		_, err := q.Advance()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q.Cursor(), 0)
		assert.LessOrEqual(t, q.Cursor(), q.Len())
	}

	q.Clear()
	assert.Equal(t, 0, q.Cursor())
	_, err := q.Advance()
	assert.True(t, errors.Is(err, ErrEndOfQueue))
}

func TestParseLoopMode(t *testing.T) {
	mode, err := ParseLoopMode("queue")
	require.NoError(t, err)
	assert.Equal(t, LoopQueue, mode)
	assert.Equal(t, "queue", mode.String())

	_, err = ParseLoopMode("forever")
	assert.Error(t, err)
}
