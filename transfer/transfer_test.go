package transfer

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIterSlicing(t *testing.T) {
	for try := 0; try < 100; try++ {
		total := uint64(1 + rand.Intn(10000))
		fragSize := uint64(1 + rand.Intn(300))

		it := NewIter(make([]byte, total))
		require.Equal(t, uint64(0), it.Offset())
		require.Equal(t, total, it.Remaining())

		var (
			sum     uint64
			lengths []uint64
			offsets []uint64
		)
		for {
			sub, next, final := it.NextSlice(fragSize)
			require.Equal(t, sum, sub.Offset())
			offsets = append(offsets, sub.Offset())
			lengths = append(lengths, sub.Remaining())
			sum += sub.Remaining()
			if final {
				break
			}
			it = next
		}

		// slices are contiguous, offset-ascending, and sum to the total
		require.Equal(t, total, sum)
		for i, l := range lengths[:len(lengths)-1] {
			require.Equal(t, fragSize, l, "non-final slice %d", i)
		}
		want := total % fragSize
		if want == 0 {
			want = fragSize
		}
		require.Equal(t, want, lengths[len(lengths)-1])
		for i := 1; i < len(offsets); i++ {
			require.Equal(t, offsets[i-1]+lengths[i-1], offsets[i])
		}
	}
}

func TestIterDoesNotAdvanceReceiver(t *testing.T) {
	it := NewIter(make([]byte, 10))
	_, _, final := it.NextSlice(4)
	require.False(t, final)
	// the receiver keeps its position until next is adopted
	require.Equal(t, uint64(10), it.Remaining())
	require.Equal(t, uint64(0), it.Offset())
}

func TestCompleteExactlyOnce(t *testing.T) {
	calls := 0
	var got error
	r := &Request{
		OnComplete: func(err error) {
			calls++
			got = err
		},
	}

	boom := errors.New("boom")
	r.Complete(boom)
	r.Complete(nil)
	r.Complete(boom)

	require.Equal(t, 1, calls)
	require.ErrorIs(t, got, boom)
	require.Equal(t, StageAborted, r.State.Stage)
	require.True(t, r.Completed())
}

func TestPoolFragCapacity(t *testing.T) {
	p := NewPool(2)
	parent := &Request{}
	p.Add(parent)
	require.NotEqual(t, NilRequest, parent.ID)

	f1, err := p.AllocFrag(parent)
	require.NoError(t, err)
	require.True(t, f1.IsFrag())
	require.Equal(t, parent.ID, f1.ParentID)

	f2, err := p.AllocFrag(parent)
	require.NoError(t, err)
	require.Equal(t, 2, p.FragsInFlight())

	_, err = p.AllocFrag(parent)
	require.ErrorIs(t, err, ErrNoResource)

	p.Free(f1)
	require.Equal(t, 1, p.FragsInFlight())
	_, err = p.AllocFrag(parent)
	require.NoError(t, err)

	// double free does not corrupt accounting
	p.Free(f2)
	p.Free(f2)
	require.Equal(t, 1, p.FragsInFlight())

	require.Same(t, parent, p.Get(parent.ID))
	require.Nil(t, p.Get(RequestID(1000)))
}
