// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared contracts for the reactor core: tasks, endpoints, rings.

package api

// Task is a unit of work submitted to a Scheduler's FIFO.
type Task func()

// Endpoint carries the OS-level identity of a channel: the raw descriptor
// plus the last OS error observed on the hot transfer path. OS errors are
// parked here rather than thrown mid-cycle so one bad descriptor cannot
// abort a multi-channel dispatch pass.
type Endpoint struct {
	FD      int
	LastErr error
}

// Raised reports whether an OS error has been recorded on this endpoint.
func (e *Endpoint) Raised() bool {
	return e != nil && e.LastErr != nil
}

// Ring is a bounded queue contract for cross-thread producer/consumer.
type Ring[T any] interface {
	// Enqueue adds an item, returns false if full.
	Enqueue(item T) bool
	// Dequeue removes the oldest item, returns false if empty.
	Dequeue() (T, bool)
	// Len returns the current number of items.
	Len() int
	// Cap returns buffer capacity.
	Cap() int
}
