// File: internal/poll/poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral declarations for the readiness primitive.

package poll

import "time"

// Mode selects the readiness direction registered for a descriptor.
type Mode uint8

// Registration modes.
const (
	ModeReceive  Mode = 1 << 0 // readable
	ModeTransmit Mode = 1 << 1 // writable
)

// Ready is one readiness notification produced by Wait.
type Ready struct {
	FD       int
	Readable bool
	Writable bool
	Hangup   bool
	Failed   bool
}

// Forever blocks Wait indefinitely.
const Forever = time.Duration(-1)
