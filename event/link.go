// File: event/link.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Link binds an Event to a callback for one-shot or cyclic firing. The
// scheduler tracks links by event index only; whoever created the link owns
// it and may drop or cancel it at any time.

package event

import (
	"sync/atomic"

	"github.com/momentics/kio/api"
)

// Callback is invoked when a link's event becomes ready and the owning
// scheduler executes.
type Callback func()

// ExceptionCallback handles a panic raised by another link's callback or an
// enqueued task. It receives the failing link (nil for plain tasks) and the
// recovered error.
type ExceptionCallback func(failed *Link, err error)

// Link is the binding of an Event to a callback within a Scheduler.
type Link struct {
	ev   *Event
	fn   Callback
	trap ExceptionCallback

	dispatched atomic.Bool
	cancelled  atomic.Bool
	cyclic     atomic.Bool
}

// NewLink creates a detached link binding ev to fn.
func NewLink(ev *Event, fn Callback) *Link {
	return &Link{ev: ev, fn: fn}
}

// NewExceptionLink creates a link carrying an exception trap. Its event is
// always KindMetaException.
func NewExceptionLink(fn ExceptionCallback) *Link {
	return &Link{ev: Exception(), trap: fn}
}

// Event returns the bound event.
func (l *Link) Event() *Event { return l.ev }

// Dispatched reports whether the link has been handed to a scheduler.
func (l *Link) Dispatched() bool { return l.dispatched.Load() }

// Cancelled reports whether the link was cancelled or has completed a
// non-cyclic fire.
func (l *Link) Cancelled() bool { return l.cancelled.Load() }

// Cyclic reports whether the link re-arms after each fire.
func (l *Link) Cyclic() bool { return l.cyclic.Load() }

// MarkDispatched transitions the link to dispatched. A second dispatch of
// the same link is a programming error.
func (l *Link) MarkDispatched(cyclic bool) error {
	if !l.dispatched.CompareAndSwap(false, true) {
		return api.ErrLinkDispatched
	}
	l.cyclic.Store(cyclic)
	return nil
}

// MarkCancelled marks the link cancelled. Idempotent; safe on fired links.
func (l *Link) MarkCancelled() { l.cancelled.Store(true) }

// Invoke runs the bound callback if one is set.
func (l *Link) Invoke() {
	if l.fn != nil {
		l.fn()
	}
}

// InvokeException routes a recovered panic into the trap. Reports false when
// this link carries no trap.
func (l *Link) InvokeException(failed *Link, err error) bool {
	if l.trap == nil {
		return false
	}
	l.trap(failed, err)
	return true
}
