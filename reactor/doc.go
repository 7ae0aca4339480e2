// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor implements the readiness-based I/O multiplexing core:
// Channel wraps one non-blocking OS resource with an
// acquire/transfer/exhaust/terminate lifecycle, and Array multiplexes a set
// of Channels over one OS polling handle, producing per-cycle transfer
// snapshots.
package reactor
