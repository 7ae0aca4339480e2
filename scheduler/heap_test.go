// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// heap_test.go: timer heap ordering and O(log N) removal.
package scheduler

import (
	"testing"
	"time"

	"github.com/momentics/kio/event"
)

func TestTimerHeap_Ordering(t *testing.T) {
	var h timerHeap
	base := time.Now()
	for _, offset := range []time.Duration{50, 10, 30, 20, 40} {
		h.push(&timerEntry{
			deadline: base.Add(offset * time.Millisecond),
			link:     event.NewLink(event.Time(offset*time.Millisecond), nil),
		})
	}

	last := time.Time{}
	for h.Len() > 0 {
		e := h.pop()
		if e.deadline.Before(last) {
			t.Fatal("heap popped deadlines out of order")
		}
		last = e.deadline
	}
}

func TestTimerHeap_Remove(t *testing.T) {
	var h timerHeap
	base := time.Now()
	victim := &timerEntry{
		deadline: base.Add(20 * time.Millisecond),
		link:     event.NewLink(event.Time(20*time.Millisecond), nil),
	}
	h.push(&timerEntry{deadline: base.Add(10 * time.Millisecond)})
	h.push(victim)
	h.push(&timerEntry{deadline: base.Add(30 * time.Millisecond)})

	removed := h.remove(victim.heapIdx)
	if removed != victim {
		t.Fatal("remove returned the wrong entry")
	}
	if victim.heapIdx != -1 {
		t.Error("removed entry should be marked out of heap")
	}
	if h.Len() != 2 {
		t.Errorf("heap length = %d, want 2", h.Len())
	}
}

func TestTimerHeap_PeekEmpty(t *testing.T) {
	var h timerHeap
	if h.peek() != nil {
		t.Error("peek on empty heap should be nil")
	}
}
