// File: reactor/transfer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// Transfer is one entry of an Array cycle's snapshot: the state change a
// single Channel underwent during the poll-and-dispatch pass.
type Transfer struct {
	// Channel is the channel that changed state.
	Channel *Channel

	// Payload is the sub-range of the acquired resource moved this cycle.
	// Nil when the channel was reported for a forced flush or a pure
	// termination with nothing outstanding.
	Payload []byte

	// Demand is set exactly when the acquired resource was fully consumed:
	// the caller must Acquire again to continue transferring.
	Demand bool

	// Terminated is set exactly on the cycle where the OS resource closed.
	Terminated bool
}
