// File: reactor/array.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Array multiplexes a set of Channels over one OS polling handle. Each
// Cycle performs exactly one poll-and-dispatch pass and leaves behind a
// single-consumption transfer snapshot.

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/kio/api"
	"github.com/momentics/kio/internal/poll"
)

// Array is a readiness multiplexer over a set of Channels.
type Array struct {
	id     string
	poller *poll.Poller

	mu       sync.Mutex
	channels map[int]*Channel // live members keyed by fd
	pending  []*Channel       // terminated externally, terminal entry not yet reported
	snapshot []Transfer
	hasSnap  bool
	consumed bool

	inCycle    atomic.Bool
	forced     atomic.Bool
	terminated atomic.Bool
	drained    atomic.Bool // the one post-termination drain cycle ran
}

// NewArray creates an Array with the given readiness-table capacity.
func NewArray(maxEvents int) (*Array, error) {
	p, err := poll.New(maxEvents)
	if err != nil {
		return nil, err
	}
	return &Array{
		id:       uuid.NewString(),
		poller:   p,
		channels: make(map[int]*Channel),
	}, nil
}

// ID returns the array's identity for probes and logs.
func (a *Array) ID() string { return a.id }

// Acquire registers c with this array. Fails with a TransitionViolation if
// the array is terminated or the channel already belongs to another array.
func (a *Array) Acquire(c *Channel) error {
	if a.terminated.Load() {
		return api.NewTransition("array", "acquire", "terminated")
	}
	if err := c.adopt(a); err != nil {
		return err
	}
	mode := poll.ModeReceive
	if c.polarity == Transmit {
		mode = poll.ModeTransmit
	}
	if err := a.poller.Add(c.endpoint.FD, mode); err != nil {
		c.release(a)
		return err
	}
	a.mu.Lock()
	a.channels[c.endpoint.FD] = c
	a.mu.Unlock()
	return nil
}

// Remove detaches c without terminating it, so it may be reassigned to
// another array. No-op if c is not a member.
func (a *Array) Remove(c *Channel) {
	a.mu.Lock()
	cur, ok := a.channels[c.endpoint.FD]
	if !ok || cur != c {
		a.mu.Unlock()
		return
	}
	delete(a.channels, c.endpoint.FD)
	a.mu.Unlock()
	_ = a.poller.Del(c.endpoint.FD)
	c.release(a)
}

// retire handles a channel terminated from outside a cycle: unregister it,
// close the descriptor, and queue the terminal report for the next pass.
func (a *Array) retire(c *Channel) {
	a.mu.Lock()
	cur, ok := a.channels[c.endpoint.FD]
	if ok && cur == c {
		delete(a.channels, c.endpoint.FD)
		a.pending = append(a.pending, c)
	}
	a.mu.Unlock()
	if ok && cur == c {
		_ = a.poller.Del(c.endpoint.FD)
		c.closeOnce()
		c.release(a)
		a.wake()
	}
}

// Volume returns the count of live (non-terminated) member channels.
func (a *Array) Volume() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.channels)
}

// Terminated reports whether Terminate has been called.
func (a *Array) Terminated() bool { return a.terminated.Load() }

// Force makes the next Cycle return without blocking, reporting forced
// channels even with zero bytes transferred.
func (a *Array) Force() {
	a.forced.Store(true)
	a.wake()
}

// Terminate marks the array terminated and cascades termination to every
// member channel. Idempotent. One final Cycle is still permitted so the
// outstanding channel terminations get drained and reported.
func (a *Array) Terminate() {
	if !a.terminated.CompareAndSwap(false, true) {
		return
	}
	a.mu.Lock()
	members := make([]*Channel, 0, len(a.channels))
	for _, c := range a.channels {
		members = append(members, c)
	}
	a.mu.Unlock()
	for _, c := range members {
		c.Terminate() // re-enters retire; map mutation is per-channel
	}
	a.forced.Store(true)
	a.wake()
}

// ResizeExoresource sets the readiness-table capacity. Rejected while a
// cycle is in progress.
func (a *Array) ResizeExoresource(n int) error {
	if a.inCycle.Load() {
		return api.ErrInCycle
	}
	if n <= 0 {
		return api.ErrInvalidArgument
	}
	a.poller.Resize(n)
	return nil
}

// Cycle performs one poll-and-dispatch pass: block up to timeout (or return
// immediately when forced) until a registered channel is ready, then move
// bytes for every ready channel and record the per-channel state changes as
// this cycle's transfer snapshot. After Terminate, exactly one more drain
// cycle is allowed; any further Cycle is a TransitionViolation.
func (a *Array) Cycle(timeout time.Duration) error {
	if a.terminated.Load() && !a.drained.CompareAndSwap(false, true) {
		return api.NewTransition("array", "cycle", "terminated")
	}
	if !a.inCycle.CompareAndSwap(false, true) {
		return api.NewTransition("array", "cycle", "cycle in progress")
	}
	defer a.inCycle.Store(false)

	if a.forced.Swap(false) || a.anyPending() {
		timeout = 0
	}

	ready := make([]poll.Ready, a.poller.Capacity())
	n := 0
	if !a.terminated.Load() {
		var err error
		n, err = a.poller.Wait(timeout, ready)
		if err != nil {
			return err
		}
	}

	a.mu.Lock()
	snap := a.snapshot[:0]
	seen := make(map[*Channel]bool, n)
	retired := []*Channel(nil)

	for i := 0; i < n; i++ {
		c, ok := a.channels[ready[i].FD]
		if !ok {
			continue
		}
		t, ok := c.dispatch(ready[i].Hangup || ready[i].Failed)
		if !ok {
			if c.polarity == Transmit && !c.pendingWrite() {
				// Nothing to send: park writability interest so a
				// permanently writable descriptor cannot spin the worker.
				// A would-block mid-payload keeps its interest armed.
				_ = a.poller.Mod(c.endpoint.FD, 0)
			}
			continue
		}
		seen[c] = true
		snap = append(snap, t)
		if t.Terminated {
			retired = append(retired, c)
			delete(a.channels, c.endpoint.FD)
		}
	}

	// Forced channels report even with zero bytes transferred.
	for _, c := range a.channels {
		if seen[c] || !c.takeForce() {
			continue
		}
		t, ok := c.dispatch(false)
		if !ok {
			t = Transfer{Channel: c}
		}
		snap = append(snap, t)
		if t.Terminated {
			retired = append(retired, c)
			delete(a.channels, c.endpoint.FD)
		}
	}

	// Externally terminated members still owe their terminal marker.
	for _, c := range a.pending {
		if c.needsTerminalReport() {
			snap = append(snap, c.terminalEntry())
		}
	}
	a.pending = a.pending[:0]

	a.snapshot = snap
	a.hasSnap = true
	a.consumed = false
	a.mu.Unlock()

	for _, c := range retired {
		_ = a.poller.Del(c.endpoint.FD)
		c.closeOnce()
		c.release(a)
	}
	return nil
}

// anyPending reports queued terminal entries or member force requests.
func (a *Array) anyPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) > 0 {
		return true
	}
	for _, c := range a.channels {
		if c.forced.Load() {
			return true
		}
	}
	return false
}

// Transfer returns the snapshot produced by the most recent Cycle. The
// snapshot is single-pass: a second call in the same cycle fails with
// ErrSnapshotConsumed.
func (a *Array) Transfer() ([]Transfer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasSnap {
		return nil, api.ErrOutsideCycle
	}
	if a.consumed {
		return nil, api.ErrSnapshotConsumed
	}
	a.consumed = true
	return a.snapshot, nil
}

// Close releases the polling handle. Call after the final drain cycle.
func (a *Array) Close() error {
	return a.poller.Close()
}

// rearm restores writability interest after a fresh acquire on a parked
// transmit channel.
func (a *Array) rearm(c *Channel) {
	a.mu.Lock()
	_, member := a.channels[c.endpoint.FD]
	a.mu.Unlock()
	if !member {
		return
	}
	_ = a.poller.Mod(c.endpoint.FD, poll.ModeTransmit)
	a.wake()
}

// wake interrupts a blocked Cycle.
func (a *Array) wake() {
	_ = a.poller.Wake()
}
