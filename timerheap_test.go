package ev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerHeapOrdersByWhen(t *testing.T) {
	h := NewTimerHeap(4)
	f1, f2, f3 := &goFiber{}, &goFiber{}, &goFiber{}
	h.Add(&timeout{when: 300, fiber: f1})
	h.Add(&timeout{when: 100, fiber: f2})
	h.Add(&timeout{when: 200, fiber: f3})

	var order []int64
	for h.Len() > 0 {
		e, ok := h.PopMin()
		require.True(t, ok)
		order = append(order, e.when)
	}
	assert.Equal(t, []int64{100, 200, 300}, order)
}

func TestTimerHeapPeekDoesNotRemove(t *testing.T) {
	h := NewTimerHeap(4)
	h.Add(&timeout{when: 50, fiber: &goFiber{}})
	e, ok := h.Peek()
	require.True(t, ok)
	assert.EqualValues(t, 50, e.when)
	assert.Equal(t, 1, h.Len())
}

func TestTimerHeapRemoveArbitraryIndex(t *testing.T) {
	h := NewTimerHeap(4)
	a := &timeout{when: 10, fiber: &goFiber{}}
	b := &timeout{when: 20, fiber: &goFiber{}}
	c := &timeout{when: 30, fiber: &goFiber{}}
	h.Add(a)
	h.Add(b)
	h.Add(c)

	h.Remove(b)
	assert.Equal(t, 2, h.Len())

	var order []int64
	for h.Len() > 0 {
		e, _ := h.PopMin()
		order = append(order, e.when)
	}
	assert.Equal(t, []int64{10, 30}, order)
}

func TestTimerHeapRemoveIsIdempotent(t *testing.T) {
	h := NewTimerHeap(4)
	a := &timeout{when: 10, fiber: &goFiber{}}
	h.Add(a)
	h.Remove(a)
	assert.Equal(t, 0, h.Len())
	h.Remove(a) // second removal of an already-detached entry must not panic
	assert.Equal(t, 0, h.Len())
}

func TestTimerHeapEachVisitsAllFibers(t *testing.T) {
	h := NewTimerHeap(4)
	f1, f2 := &goFiber{name: "a"}, &goFiber{name: "b"}
	h.Add(&timeout{when: 1, fiber: f1})
	h.Add(&timeout{when: 2, fiber: f2})

	seen := map[string]bool{}
	h.Each(func(f Fiber) { seen[f.(*goFiber).name] = true })
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}
