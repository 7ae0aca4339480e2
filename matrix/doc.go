// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package matrix parallelizes I/O multiplexing: a pool of reactor Arrays,
// one worker goroutine each, load-balanced on acquire and evicted after a
// configurable idle countdown with a two-phase removal protocol.
package matrix
