// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package event defines the waitable condition descriptors (Event) and their
// callback bindings (Link) consumed by the scheduler package.
package event
