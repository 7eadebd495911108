package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUVictimOrder(t *testing.T) {
	r := NewLRU(7)

	for _, id := range []int{1, 2, 3, 4, 5} {
		r.Unpin(id)
	}
	require.Equal(t, 5, r.Size())

	r.Pin(3)
	r.Pin(4)
	require.Equal(t, 3, r.Size())

	r.Unpin(3)
	r.Unpin(4)
	require.Equal(t, 5, r.Size())

	for _, want := range []int{1, 2, 5, 3, 4} {
		got, ok := r.Victim()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := r.Victim()
	require.False(t, ok)
}

func TestLRUPinNoOpWhenAbsent(t *testing.T) {
	r := NewLRU(3)
	r.Pin(42) // not tracked, must not panic or affect size
	require.Equal(t, 0, r.Size())
}

func TestLRUUnpinIdempotent(t *testing.T) {
	r := NewLRU(3)
	r.Unpin(1)
	r.Unpin(1)
	require.Equal(t, 1, r.Size())
}

func TestLRUEvictsOldestOnOverCapacity(t *testing.T) {
	r := NewLRU(2)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3) // capacity 2: frame 1 silently falls off

	require.Equal(t, 2, r.Size())
	got, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, got)
}
