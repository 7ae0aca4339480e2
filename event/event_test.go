// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// event_test.go: Event identity cache and Link lifecycle contract.
package event

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/momentics/kio/api"
)

func TestEvent_TimeAlwaysDistinct(t *testing.T) {
	a := Time(10 * time.Millisecond)
	b := Time(10 * time.Millisecond)
	if a == b {
		t.Error("two Time events with identical durations must be distinct")
	}
}

func TestEvent_ProcessExitIdentityCache(t *testing.T) {
	a := ProcessExit(100)
	b := ProcessExit(100)
	if a != b {
		t.Error("back-to-back ProcessExit for the same pid should be identical")
	}

	// An intervening construction for a different pid evicts the slot.
	_ = ProcessExit(200)
	c := ProcessExit(100)
	if a == c {
		t.Error("identity must not survive an intervening different pid")
	}
}

func TestEvent_SignalIdentityCache(t *testing.T) {
	a := ProcessSignal(syscall.SIGUSR1)
	b := ProcessSignal(syscall.SIGUSR1)
	if a != b {
		t.Error("back-to-back ProcessSignal for the same signal should be identical")
	}
}

func TestEvent_Accessors(t *testing.T) {
	if ev := Time(time.Second); ev.Kind() != KindTime || ev.Duration() != time.Second {
		t.Error("Time accessor mismatch")
	}
	if ev := IoReceive(7); ev.Kind() != KindIoReceive || ev.FD() != 7 {
		t.Error("IoReceive accessor mismatch")
	}
	if ev := IoTransmit(7); ev.Kind() != KindIoTransmit || ev.FD() != 7 {
		t.Error("IoTransmit accessor mismatch")
	}
	if ev := Never(); ev.Kind() != KindNever {
		t.Error("Never accessor mismatch")
	}
}

func TestLink_RedispatchRejected(t *testing.T) {
	l := NewLink(Time(0), func() {})
	if err := l.MarkDispatched(false); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	err := l.MarkDispatched(false)
	if !errors.Is(err, api.ErrLinkDispatched) {
		t.Errorf("second dispatch should fail with ErrLinkDispatched, got %v", err)
	}
}

func TestLink_CancelIdempotent(t *testing.T) {
	l := NewLink(Never(), func() {})
	l.MarkCancelled()
	l.MarkCancelled()
	if !l.Cancelled() {
		t.Error("link should stay cancelled")
	}
}

func TestLink_ExceptionTrap(t *testing.T) {
	var gotErr error
	trap := NewExceptionLink(func(failed *Link, err error) { gotErr = err })
	if trap.Event().Kind() != KindMetaException {
		t.Fatal("exception link must carry a MetaException event")
	}
	if !trap.InvokeException(nil, errors.New("boom")) {
		t.Fatal("trap should handle the exception")
	}
	if gotErr == nil || gotErr.Error() != "boom" {
		t.Errorf("trap received %v", gotErr)
	}

	plain := NewLink(Never(), func() {})
	if plain.InvokeException(nil, errors.New("boom")) {
		t.Error("a plain link carries no trap")
	}
}
