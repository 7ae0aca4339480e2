// File: kchannel/output.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// KOutput layers production semantics onto a transmit channel: writes queue
// payloads in a bounded ring, queue depth drives the backpressure signal,
// and termination is deferred until the queue drains.

package kchannel

import (
	"sync"

	"github.com/momentics/kio/api"
	"github.com/momentics/kio/control"
	"github.com/momentics/kio/reactor"
)

// ErrBackpressure reports a full payload queue; the producer must stop
// until the downstream drains.
var ErrBackpressure = api.NewError(api.ErrCodeInvalidArgument, "output queue full")

// Output adapts a transmit-direction Channel for queued writing with
// watermark backpressure.
type Output struct {
	ch   *reactor.Channel
	high int
	low  int

	mu          sync.Mutex
	queue       *Ring[[]byte]
	outstanding bool // a resource is acquired and not yet exhausted
	blocked     bool // hysteresis latch between the watermarks
	terminating bool
	closed      bool
}

// NewOutput wraps ch with the given flow tuning.
func NewOutput(ch *reactor.Channel, cfg control.FlowConfig) (*Output, error) {
	if ch.Polarity() != reactor.Transmit {
		return nil, api.ErrInvalidArgument
	}
	return &Output{
		ch:    ch,
		high:  cfg.HighWatermark,
		low:   cfg.LowWatermark,
		queue: NewRing[[]byte](cfg.HighWatermark * 2),
	}, nil
}

// Channel returns the underlying channel for registration with an Array or
// Matrix.
func (o *Output) Channel() *reactor.Channel { return o.ch }

// Write queues p for transmission. The payload is copied, so the caller may
// reuse p. A full queue fails with ErrBackpressure; an empty p is a no-op.
func (o *Output) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.terminating {
		return 0, api.NewTransition("koutput", "write", "terminating")
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	if !o.queue.Enqueue(buf) {
		return 0, ErrBackpressure
	}
	o.updateBlockedLocked()
	o.pumpLocked()
	return len(p), nil
}

// Feed applies one snapshot entry: an exhausted payload advances the queue,
// termination closes the adapter.
func (o *Output) Feed(t reactor.Transfer) error {
	if t.Channel != o.ch {
		return api.ErrInvalidArgument
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if t.Terminated {
		o.closed = true
		return nil
	}
	if t.Demand {
		o.outstanding = false
		o.pumpLocked()
		o.updateBlockedLocked()
	}
	if o.terminating && !o.outstanding && o.queue.Len() == 0 {
		o.closed = true
		o.ch.Terminate()
	}
	return nil
}

// pumpLocked hands the next queued payload to the channel when it has no
// outstanding resource.
func (o *Output) pumpLocked() {
	if o.outstanding || o.closed {
		return
	}
	p, ok := o.queue.Dequeue()
	if !ok {
		return
	}
	if err := o.ch.Acquire(p); err != nil {
		return
	}
	o.outstanding = true
}

// updateBlockedLocked latches the backpressure signal between watermarks.
func (o *Output) updateBlockedLocked() {
	depth := o.queue.Len()
	if depth >= o.high {
		o.blocked = true
	} else if depth <= o.low {
		o.blocked = false
	}
}

// Blocked reports the backpressure signal: true once depth reaches the high
// watermark, released only after draining to the low watermark.
func (o *Output) Blocked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blocked
}

// Depth returns the queued payload count.
func (o *Output) Depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// Flush forces the reactor to report the channel on its next cycle even
// without real readiness, pushing queued termination or demand through.
func (o *Output) Flush() { o.ch.Force() }

// Terminate drains then closes: with queued or in-flight payloads the
// channel terminates once the queue empties, otherwise immediately.
func (o *Output) Terminate() {
	o.mu.Lock()
	o.terminating = true
	idle := !o.outstanding && o.queue.Len() == 0
	if idle {
		o.closed = true
	}
	o.mu.Unlock()
	if idle {
		o.ch.Terminate()
	} else {
		o.ch.Force()
	}
}

// Terminated reports whether the underlying channel closed.
func (o *Output) Terminated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
