// File: reactor/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel wraps one non-blocking OS resource. A channel owns at most one
// acquired buffer at a time; an Array moves bytes between the buffer and the
// descriptor during its cycles and reports the result as Transfer entries.

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/kio/api"
)

// Polarity is the transfer direction of a channel.
type Polarity int8

// Polarity values: +1 moves bytes from the OS into the resource, -1 moves
// bytes from the resource into the OS.
const (
	Receive  Polarity = 1
	Transmit Polarity = -1
)

// Channel is one non-blocking I/O resource with an
// acquire/transfer/exhaust/terminate lifecycle.
type Channel struct {
	polarity Polarity
	accept   bool // listener channel: readiness only, no byte transfer

	mu           sync.Mutex
	endpoint     api.Endpoint
	resource     []byte
	off          int
	slice        []byte // sub-range transferred in the most recent cycle
	exhausted    bool
	terminated   bool
	termReported bool
	fdClosed     bool

	forced atomic.Bool
	owner  atomic.Pointer[Array]
}

// NewReceive wraps fd as a readable-direction channel.
func NewReceive(fd int) *Channel {
	return &Channel{polarity: Receive, endpoint: api.Endpoint{FD: fd}}
}

// NewTransmit wraps fd as a writable-direction channel.
func NewTransmit(fd int) *Channel {
	return &Channel{polarity: Transmit, endpoint: api.Endpoint{FD: fd}}
}

// NewAccept wraps a listening fd. Accept channels never acquire resources;
// cycles report bare readiness and the consumer performs the accept.
func NewAccept(fd int) *Channel {
	return &Channel{polarity: Receive, accept: true, endpoint: api.Endpoint{FD: fd}}
}

// Polarity returns the transfer direction.
func (c *Channel) Polarity() Polarity { return c.polarity }

// Acquire attaches buf as the channel's outstanding resource. It fails with
// a TransitionViolation while a previous resource is not yet exhausted, and
// rejects a nil/empty destination on receive channels (reads need a writable
// target). After termination, Acquire is a benign no-op: a concurrent poller
// thread may observe termination before the caller does.
func (c *Channel) Acquire(buf []byte) error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil
	}
	if c.accept {
		c.mu.Unlock()
		return api.ErrInvalidArgument
	}
	if c.resource != nil && !c.exhausted {
		c.mu.Unlock()
		return api.NewTransition("channel", "acquire", "resource outstanding")
	}
	if c.polarity == Receive && len(buf) == 0 {
		c.mu.Unlock()
		return api.ErrInvalidArgument
	}
	c.resource = buf
	c.off = 0
	c.slice = nil
	c.exhausted = len(buf) == 0 // empty transmit payload is consumed at once
	c.mu.Unlock()

	if c.polarity == Transmit {
		if a := c.owner.Load(); a != nil {
			a.rearm(c) // writability interest is parked while idle
		}
	}
	return nil
}

// Force makes the next Array cycle report this channel even with zero bytes
// transferred. Used to flush queued termination or backpressure state
// without waiting for real readiness.
func (c *Channel) Force() {
	c.forced.Store(true)
	if a := c.owner.Load(); a != nil {
		a.wake()
	}
}

// Terminate closes the channel. Idempotent; releases any outstanding
// resource. The next cycle of the owning Array reports the final slice
// together with the terminal marker.
func (c *Channel) Terminate() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.resource = nil
	c.off = 0
	c.mu.Unlock()

	if a := c.owner.Load(); a != nil {
		a.retire(c)
		return
	}
	c.closeOnce()
}

// closeOnce closes the descriptor exactly once.
func (c *Channel) closeOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fdClosed {
		return
	}
	c.fdClosed = true
	_ = closeFD(c.endpoint.FD)
}

// Exhausted reports whether the acquired resource was fully consumed and a
// new one must be supplied.
func (c *Channel) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// Terminated reports whether the channel is closed for further transfer.
func (c *Channel) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Endpoint returns the OS identity of the channel, or nil once terminated
// and fully reported.
func (c *Channel) Endpoint() *api.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated && c.termReported {
		return nil
	}
	ep := c.endpoint
	return &ep
}

// Raised reports whether an OS error is parked on the endpoint.
func (c *Channel) Raised() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint.LastErr != nil
}

// Exception returns the parked OS error, if any.
func (c *Channel) Exception() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint.LastErr
}

// adopt claims the channel for a. A channel belongs to exactly one Array.
func (c *Channel) adopt(a *Array) error {
	if !c.owner.CompareAndSwap(nil, a) {
		return api.NewTransition("channel", "acquire", "owned by another array")
	}
	return nil
}

// release drops array ownership so the channel may be reassigned.
func (c *Channel) release(a *Array) {
	c.owner.CompareAndSwap(a, nil)
}

// takeForce consumes a pending force request.
func (c *Channel) takeForce() bool {
	return c.forced.Swap(false)
}

// dispatch moves bytes for one readiness notification and returns the
// resulting snapshot entry. ok is false when nothing reportable happened
// (no resource, would-block). Called only from the owning Array's cycle.
func (c *Channel) dispatch(hangup bool) (t Transfer, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return c.terminalLocked(), true
	}
	if c.accept {
		// Listener readiness carries no bytes; the consumer accepts.
		if hangup {
			return c.terminateLocked(), true
		}
		return Transfer{Channel: c}, true
	}
	if c.resource == nil || c.exhausted {
		if hangup {
			return c.terminateLocked(), true
		}
		return Transfer{}, false
	}

	var n int
	var err error
	if c.polarity == Receive {
		n, err = readFD(c.endpoint.FD, c.resource[c.off:])
	} else {
		n, err = writeFD(c.endpoint.FD, c.resource[c.off:])
	}
	switch {
	case err != nil && errAgain(err):
		if hangup {
			return c.terminateLocked(), true
		}
		return Transfer{}, false
	case err != nil:
		// Parked, not thrown: one bad descriptor must not abort the cycle.
		c.endpoint.LastErr = err
		return c.terminateLocked(), true
	case n == 0 && c.polarity == Receive:
		// EOF from the peer.
		return c.terminateLocked(), true
	}

	c.slice = c.resource[c.off : c.off+n]
	c.off += n
	if c.off == len(c.resource) {
		c.exhausted = true
	}
	return Transfer{Channel: c, Payload: c.slice, Demand: c.exhausted}, true
}

// terminateLocked flips the channel into the terminated state and builds the
// terminal snapshot entry. Caller holds c.mu.
func (c *Channel) terminateLocked() Transfer {
	c.terminated = true
	c.resource = nil
	c.off = 0
	return c.terminalLocked()
}

// terminalLocked builds the one-time terminal entry: the final slice
// followed by the terminal marker. Caller holds c.mu.
func (c *Channel) terminalLocked() Transfer {
	t := Transfer{Channel: c, Payload: c.slice, Terminated: true}
	c.termReported = true
	c.slice = nil
	return t
}

// terminalEntry builds the terminal snapshot entry for an externally
// terminated channel.
func (c *Channel) terminalEntry() Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalLocked()
}

// pendingWrite reports an unexhausted transmit resource. While one exists,
// writability interest must stay armed: a would-block write resumes as soon
// as the peer drains.
func (c *Channel) pendingWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polarity == Transmit && c.resource != nil && !c.exhausted && !c.terminated
}

// needsTerminalReport reports a termination not yet surfaced in a snapshot.
func (c *Channel) needsTerminalReport() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated && !c.termReported
}
