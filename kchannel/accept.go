// File: kchannel/accept.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// KAccept layers connection intake onto an accept channel: listener
// readiness reported by the reactor is converted into accepted,
// non-blocking descriptors handed to a callback.

package kchannel

import (
	"github.com/momentics/kio/api"
	"github.com/momentics/kio/reactor"
)

// ConnFunc receives each accepted non-blocking descriptor.
type ConnFunc func(fd int)

// Accept adapts an accept-polarity Channel.
type Accept struct {
	ch     *reactor.Channel
	onConn ConnFunc
}

// NewAccept wraps a listening channel created with reactor.NewAccept.
func NewAccept(ch *reactor.Channel, onConn ConnFunc) (*Accept, error) {
	if onConn == nil {
		return nil, api.ErrInvalidArgument
	}
	return &Accept{ch: ch, onConn: onConn}, nil
}

// Channel returns the underlying channel for registration with an Array or
// Matrix.
func (k *Accept) Channel() *reactor.Channel { return k.ch }

// Feed applies one snapshot entry: listener readiness drains the kernel's
// accept backlog until it would block.
func (k *Accept) Feed(t reactor.Transfer) error {
	if t.Channel != k.ch {
		return api.ErrInvalidArgument
	}
	if t.Terminated {
		return nil
	}
	ep := k.ch.Endpoint()
	if ep == nil {
		return nil
	}
	for {
		fd, err := acceptFD(ep.FD)
		if err != nil {
			return nil // would-block or racing close, resolve next pass
		}
		k.onConn(fd)
	}
}

// Terminate closes the listener.
func (k *Accept) Terminate() { k.ch.Terminate() }
