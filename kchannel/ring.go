// File: kchannel/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring is a bounded circular buffer with atomic head/tail, padded to prevent
// false sharing. Single-producer, single-consumer safe; it backs the
// KOutput payload queue whose depth drives backpressure.

package kchannel

import (
	"sync/atomic"

	"github.com/momentics/kio/api"
)

// Ensure compile-time interface compliance.
var _ api.Ring[any] = (*Ring[any])(nil)

// Ring is a lock-free bounded queue of power-of-two capacity.
type Ring[T any] struct {
	data []T
	mask uint64
	head atomic.Uint64
	_    [64]byte // padding for hot/cold separation
	tail atomic.Uint64
	_    [64]byte // padding to separate tail from other data
}

// NewRing allocates a ring rounded up to the next power of two.
func NewRing[T any](size int) *Ring[T] {
	n := nextPowerOfTwo(uint32(size))
	return &Ring[T]{
		data: make([]T, n),
		mask: uint64(n) - 1,
	}
}

// Enqueue adds item; returns false if full.
func (r *Ring[T]) Enqueue(item T) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = item
	r.tail.Store(tail + 1)
	return true
}

// Dequeue removes and returns the oldest item; ok false if empty.
func (r *Ring[T]) Dequeue() (T, bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head >= tail {
		var zero T
		return zero, false
	}
	item := r.data[head&r.mask]
	var zero T
	r.data[head&r.mask] = zero // allow GC
	r.head.Store(head + 1)
	return item, true
}

// Len returns the number of items currently queued.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
