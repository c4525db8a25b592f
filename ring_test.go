package ev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFOOrder(t *testing.T) {
	var q RingQueue[int]
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.EqualValues(t, 5, q.Count())
	for i := 0; i < 5; i++ {
		v, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.Empty())
}

func TestRingQueuePopEmpty(t *testing.T) {
	var q RingQueue[string]
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueGrowthPreservesOrderAcrossWraparound(t *testing.T) {
	var q RingQueue[int]
	// Fill past the initial tiny capacity and drain some entries so head
	// and tail are both mid-buffer, then push past a grow() boundary to
	// exercise the wrapped-head-segment shift.
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Push(i))
	}
	for i := 0; i < 5; i++ {
		v, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	for i := 8; i < 40; i++ {
		require.NoError(t, q.Push(i))
	}

	var got []int
	q.Each(func(v int) { got = append(got, v) })
	var want []int
	for i := 5; i < 40; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, got)

	for i := 5; i < 40; i++ {
		v, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.Empty())
}

func TestRingQueueCapacityExceeded(t *testing.T) {
	q := RingQueue[int]{capacity: maxQueueCapacity, tail: maxQueueCapacity - 1, head: 0}
	q.data = make([]int, maxQueueCapacity)
	err := q.Push(1)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestRingQueueEachDoesNotMutate(t *testing.T) {
	var q RingQueue[int]
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	var seen []int
	q.Each(func(v int) { seen = append(seen, v) })
	assert.Equal(t, []int{1, 2}, seen)
	assert.EqualValues(t, 2, q.Count())
}
