//go:build !linux
// +build !linux

// File: scheduler/reap_stub.go
// Author: momentics <momentics@gmail.com>

package scheduler

// reapChildren is unavailable without the readiness backend.
func reapChildren() []int { return nil }
