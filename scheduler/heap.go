// File: scheduler/heap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Min-heap of timer entries keyed by absolute deadline. The heap root is the
// next deadline in O(1); insert and remove are O(log N). Cancellation is
// lazy: cancelled entries are discarded when they surface at the root.

package scheduler

import (
	"container/heap"
	"time"

	"github.com/momentics/kio/event"
)

// timerEntry is one pending timer in the heap.
type timerEntry struct {
	deadline time.Time
	link     *event.Link

	// heapIdx is the entry's current position in the heap slice, maintained
	// by timerHeap.Swap so Cancel can heap.Remove in O(log N).
	heapIdx int

	cancelled bool
}

// timerHeap satisfies heap.Interface; the earliest deadline sits at index 0.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	e := x.(*timerEntry)
	e.heapIdx = n
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // allow GC
	e.heapIdx = -1 // mark as not in heap
	*h = old[:n-1]
	return e
}

// push inserts an entry.
func (h *timerHeap) push(e *timerEntry) {
	heap.Push(h, e)
}

// remove removes the entry at position idx and re-heapifies in O(log N).
func (h *timerHeap) remove(idx int) *timerEntry {
	return heap.Remove(h, idx).(*timerEntry)
}

// peek returns the root entry without popping, or nil when empty.
func (h timerHeap) peek() *timerEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// pop removes and returns the root entry.
func (h *timerHeap) pop() *timerEntry {
	return heap.Pop(h).(*timerEntry)
}
