//go:build linux
// +build linux

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// scheduler_test.go: scheduler contract for timers, tasks, interrupt
// coalescing, close draining and meta events.
package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/kio/api"
	"github.com/momentics/kio/control"
	"github.com/momentics/kio/event"
	"github.com/momentics/kio/internal/poll"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestScheduler_ImmediateTimer(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	fired := 0
	l := event.NewLink(event.Time(0), func() { fired++ })
	if err := s.Dispatch(l, false); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	n, err := s.Wait(time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n < 1 {
		t.Fatalf("wait returned %d ready events, want >= 1", n)
	}
	if got := s.Execute(); got != 1 {
		t.Errorf("first execute = %d, want 1", got)
	}
	if got := s.Execute(); got != 0 {
		t.Errorf("second execute = %d, want 0", got)
	}
	if fired != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}
	if !l.Cancelled() {
		t.Error("one-shot link must be cancelled after firing")
	}
}

func TestScheduler_RedispatchFails(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	l := event.NewLink(event.Time(time.Hour), func() {})
	if err := s.Dispatch(l, false); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := s.Dispatch(l, false); !errors.Is(err, api.ErrLinkDispatched) {
		t.Errorf("re-dispatch error = %v, want ErrLinkDispatched", err)
	}
}

func TestScheduler_CancelTimer(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	l := event.NewLink(event.Time(5*time.Millisecond), func() { t.Error("cancelled link fired") })
	if err := s.Dispatch(l, false); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	s.Cancel(l)
	s.Cancel(l) // no-op on an already-cancelled link

	if _, err := s.Wait(20 * time.Millisecond); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := s.Execute(); got != 0 {
		t.Errorf("execute = %d, want 0", got)
	}
}

func TestScheduler_CyclicTimerRefires(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	var fired int
	l := event.NewLink(event.Time(time.Millisecond), func() { fired++ })
	if err := s.Dispatch(l, true); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Wait(50 * time.Millisecond); err != nil {
			t.Fatalf("wait: %v", err)
		}
		s.Execute()
	}
	if fired < 2 {
		t.Errorf("cyclic link fired %d times, want >= 2", fired)
	}
	if l.Cancelled() {
		t.Error("cyclic link must stay armed")
	}
}

func TestScheduler_TaskFIFOOrder(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Enqueue(func() { order = append(order, i) })
	}
	if got := s.Execute(); got != 5 {
		t.Fatalf("execute = %d, want 5", got)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("task order %v breaks FIFO", order)
		}
	}
}

func TestScheduler_EnqueueWakesWait(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// A task enqueued from another thread must end the wait promptly.
		s.Wait(5 * time.Second)
	}()

	waitUntil(t, func() bool { return s.waiting.Load() })
	s.Enqueue(func() {})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after cross-thread enqueue")
	}
	if got := s.Execute(); got != 1 {
		t.Errorf("execute = %d, want 1", got)
	}
}

func TestScheduler_EnqueueBeforeParkStillWakes(t *testing.T) {
	// An enqueue landing between Wait's deadline computation and its park
	// must still end the wait: the wake token is written unconditionally and
	// persists in the eventfd counter. No waiting-flag handshake here, so
	// the enqueue races the park directly.
	for i := 0; i < 50; i++ {
		s := newScheduler(t)

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Wait(poll.Forever)
		}()
		s.Enqueue(func() {})

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: wait never returned for an enqueued task", i)
		}
		if got := s.Execute(); got != 1 {
			t.Fatalf("iteration %d: execute = %d, want 1", i, got)
		}
		s.Close()
	}
}

func TestScheduler_InterruptStates(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	if tripped, waiting := s.Interrupt(); tripped || waiting {
		t.Errorf("interrupt while idle = (%v, %v), want (false, false)", tripped, waiting)
	}

	returned := make(chan int, 1)
	go func() {
		n, _ := s.Wait(5 * time.Second)
		returned <- n
	}()
	waitUntil(t, func() bool { return s.waiting.Load() })

	tripped, waiting := s.Interrupt()
	if !tripped || !waiting {
		t.Errorf("interrupt while waiting = (%v, %v), want (true, true)", tripped, waiting)
	}
	if tripped, _ := s.Interrupt(); tripped {
		t.Error("second interrupt before the wake is consumed must coalesce")
	}

	select {
	case n := <-returned:
		if n != 0 {
			t.Errorf("interrupted wait returned %d events, want 0", n)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not return after interrupt")
	}
}

func TestScheduler_IoReceiveReadiness(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var got []byte
	l := event.NewLink(event.IoReceive(fds[0]), func() {
		buf := make([]byte, 16)
		n, _ := unix.Read(fds[0], buf)
		got = buf[:n]
	})
	if err := s.Dispatch(l, false); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := s.Wait(time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("wait returned %d, want 1", n)
	}
	if s.Execute() != 1 || string(got) != "x" {
		t.Errorf("readiness callback read %q, want \"x\"", got)
	}
}

func TestScheduler_MetaActuate(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	var actuations int32
	if err := s.Dispatch(event.NewLink(event.Actuate(), func() {
		atomic.AddInt32(&actuations, 1)
	}), true); err != nil {
		t.Fatalf("dispatch actuate: %v", err)
	}

	if err := s.Dispatch(event.NewLink(event.Time(time.Hour), func() {}), false); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if atomic.LoadInt32(&actuations) != 1 {
		t.Errorf("actuate fired %d times, want 1", actuations)
	}
}

func TestScheduler_MetaExceptionTrapsPanic(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	var trapped error
	if err := s.Dispatch(event.NewExceptionLink(func(failed *event.Link, err error) {
		trapped = err
	}), true); err != nil {
		t.Fatalf("dispatch trap: %v", err)
	}

	s.Enqueue(func() { panic(errors.New("task failure")) })
	if got := s.Execute(); got != 1 {
		t.Errorf("execute = %d, want 1", got)
	}
	if trapped == nil || trapped.Error() != "task failure" {
		t.Errorf("trapped error = %v", trapped)
	}
}

func TestScheduler_UntrappedPanicPropagates(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	s.Enqueue(func() { panic("unhandled") })
	defer func() {
		if recover() == nil {
			t.Error("execute must propagate an untrapped callback panic")
		}
	}()
	s.Execute()
}

func TestScheduler_CloseDiscardsAndDrains(t *testing.T) {
	s := newScheduler(t)

	var terminations int
	if err := s.Dispatch(event.NewLink(event.Terminate(), func() { terminations++ }), true); err != nil {
		t.Fatalf("dispatch terminate: %v", err)
	}

	l1 := event.NewLink(event.Time(time.Hour), func() {})
	l2 := event.NewLink(event.Never(), func() {})
	if err := s.Dispatch(l1, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(l2, false); err != nil {
		t.Fatal(err)
	}

	if !s.Close() {
		t.Error("first close must perform the transition")
	}
	if s.Close() {
		t.Error("second close must report no transition")
	}
	if !s.Closed() {
		t.Error("scheduler should report closed")
	}
	if terminations != 2 {
		t.Errorf("MetaTerminate fired %d times, want 2 (one per discarded link)", terminations)
	}
	if !l1.Cancelled() || !l2.Cancelled() {
		t.Error("discarded links must be cancelled")
	}

	// Draining semantics: tasks still run after close, waits return at once.
	ran := false
	s.Enqueue(func() { ran = true })
	if n, _ := s.Wait(time.Hour); n != 0 {
		t.Errorf("wait after close returned %d, want 0", n)
	}
	if s.Execute() != 1 || !ran {
		t.Error("tasks enqueued after close must still execute")
	}
}

func TestScheduler_ProbesExposeDepths(t *testing.T) {
	s := newScheduler(t)
	defer s.Close()

	s.Enqueue(func() {})
	if err := s.Dispatch(event.NewLink(event.Time(time.Hour), func() {}), false); err != nil {
		t.Fatal(err)
	}

	dp := control.NewDebugProbes()
	s.RegisterProbes(dp)
	state := dp.Dump()["scheduler"]
	if state["tasks"] != 1 || state["timers"] != 1 || state["links"] != 1 || state["fired"] != 0 {
		t.Errorf("probe state = %v, want 1 task, 1 timer, 1 link, 0 fired", state)
	}
}

func TestScheduler_VoidDropsStateSilently(t *testing.T) {
	s := newScheduler(t)
	if err := s.Dispatch(event.NewLink(event.Terminate(), func() {
		t.Error("void must not fire callbacks")
	}), true); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(event.NewLink(event.Time(time.Hour), func() {}), false); err != nil {
		t.Fatal(err)
	}
	s.Void()
	if !s.Closed() {
		t.Error("void leaves the scheduler closed")
	}
	if s.Execute() != 0 {
		t.Error("void must discard queued work")
	}
}

// waitUntil polls cond with a deadline to avoid arbitrary sleeps.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
