// File: kchannel/input.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// KInput layers consumption semantics onto a receive channel: transfer
// snapshots are fed in as they arrive from the reactor, fresh destination
// buffers are re-acquired on demand, and termination surfaces as io.EOF.

package kchannel

import (
	"bytes"
	"io"
	"sync"

	"github.com/momentics/kio/api"
	"github.com/momentics/kio/reactor"
)

// Input adapts a receive-direction Channel for sequential reading.
type Input struct {
	ch    *reactor.Channel
	chunk int

	mu  sync.Mutex
	buf bytes.Buffer
	eof bool
}

// NewInput wraps ch and acquires its first destination buffer of chunk
// bytes.
func NewInput(ch *reactor.Channel, chunk int) (*Input, error) {
	if ch.Polarity() != reactor.Receive {
		return nil, api.ErrInvalidArgument
	}
	if chunk <= 0 {
		return nil, api.ErrInvalidArgument
	}
	in := &Input{ch: ch, chunk: chunk}
	if err := ch.Acquire(make([]byte, chunk)); err != nil {
		return nil, err
	}
	return in, nil
}

// Channel returns the underlying channel for registration with an Array or
// Matrix.
func (in *Input) Channel() *reactor.Channel { return in.ch }

// Feed applies one snapshot entry produced by the reactor: buffer the
// payload, re-acquire a destination when the previous one is exhausted, and
// record termination.
func (in *Input) Feed(t reactor.Transfer) error {
	if t.Channel != in.ch {
		return api.ErrInvalidArgument
	}
	in.mu.Lock()
	if len(t.Payload) > 0 {
		in.buf.Write(t.Payload)
	}
	if t.Terminated {
		in.eof = true
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()
	if t.Demand {
		// The exhausted buffer stays with the bytes already copied out of
		// it; the channel needs a fresh destination to keep receiving.
		return in.ch.Acquire(make([]byte, in.chunk))
	}
	return nil
}

// Read drains buffered bytes. Non-blocking: with nothing buffered it
// returns (0, nil) while the channel is live and io.EOF after termination.
func (in *Input) Read(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.buf.Len() == 0 {
		if in.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	return in.buf.Read(p)
}

// Pending returns the number of buffered, unread bytes.
func (in *Input) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buf.Len()
}

// Terminated reports whether the underlying channel closed.
func (in *Input) Terminated() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.eof
}

// Terminate closes the underlying channel.
func (in *Input) Terminate() { in.ch.Terminate() }
