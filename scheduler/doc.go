// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package scheduler implements the single-threaded event loop at the centre
// of the kio core: a timer min-heap, a task FIFO, descriptor/signal/child
// readiness, and the dispatch/cancel lifecycle of event links.
package scheduler
