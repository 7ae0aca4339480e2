// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package poll wraps the OS readiness-notification primitive used by both
// the reactor Array and the Scheduler's wait path: epoll plus an eventfd
// wake descriptor on Linux, and a not-supported stub elsewhere.
package poll
