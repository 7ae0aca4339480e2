//go:build !linux
// +build !linux

// File: internal/poll/poll_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub backend for platforms without a wired readiness primitive.

package poll

import (
	"time"

	"github.com/momentics/kio/api"
)

// Poller is unavailable on this platform.
type Poller struct{}

// New reports the platform as unsupported.
func New(maxEvents int) (*Poller, error) {
	return nil, api.ErrNotSupported
}

// Add is unsupported.
func (p *Poller) Add(fd int, mode Mode) error { return api.ErrNotSupported }

// Mod is unsupported.
func (p *Poller) Mod(fd int, mode Mode) error { return api.ErrNotSupported }

// Del is unsupported.
func (p *Poller) Del(fd int) error { return api.ErrNotSupported }

// Resize is a no-op.
func (p *Poller) Resize(maxEvents int) {}

// Capacity reports zero.
func (p *Poller) Capacity() int { return 0 }

// Wait is unsupported.
func (p *Poller) Wait(timeout time.Duration, out []Ready) (int, error) {
	return 0, api.ErrNotSupported
}

// Wake is unsupported.
func (p *Poller) Wake() error { return api.ErrNotSupported }

// Close is a no-op.
func (p *Poller) Close() error { return nil }
