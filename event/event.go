// File: event/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event is the tagged-union descriptor of a condition a Scheduler can wait
// for: timer expiry, process exit, signal delivery, descriptor readiness, or
// the scheduler's own meta notifications.

package event

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Kind discriminates the Event union.
type Kind uint8

// Event kinds.
const (
	KindNever Kind = iota
	KindTime
	KindProcessExit
	KindProcessSignal
	KindIoReceive
	KindIoTransmit
	KindMetaActuate
	KindMetaTerminate
	KindMetaException
)

// String returns the kind name for logs and probes.
func (k Kind) String() string {
	switch k {
	case KindNever:
		return "never"
	case KindTime:
		return "time"
	case KindProcessExit:
		return "process-exit"
	case KindProcessSignal:
		return "process-signal"
	case KindIoReceive:
		return "io-receive"
	case KindIoTransmit:
		return "io-transmit"
	case KindMetaActuate:
		return "meta-actuate"
	case KindMetaTerminate:
		return "meta-terminate"
	case KindMetaException:
		return "meta-exception"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Event describes one waitable condition. Events are immutable after
// construction and carry no reference back to any Scheduler; identity
// (pointer equality) is what the scheduler indexes links by.
type Event struct {
	kind Kind
	dur  time.Duration  // KindTime
	pid  int            // KindProcessExit
	sig  syscall.Signal // KindProcessSignal
	fd   int            // KindIoReceive / KindIoTransmit
	seq  uint64         // distinguishes every KindTime event
}

// timeSeq stamps each Time event so no two are ever identical.
var timeSeq atomic.Uint64

// identity is the per-kind single-slot construction cache: constructing the
// same kind+argument back-to-back yields the identical *Event, while an
// intervening construction for a different argument evicts the slot. Time
// events bypass the cache entirely.
var identity = struct {
	mu   sync.Mutex
	last map[Kind]*Event
}{last: make(map[Kind]*Event)}

func cached(kind Kind, same func(*Event) bool, build func() *Event) *Event {
	identity.mu.Lock()
	defer identity.mu.Unlock()
	if prev, ok := identity.last[kind]; ok && same(prev) {
		return prev
	}
	ev := build()
	identity.last[kind] = ev
	return ev
}

// Time describes a timer firing after d. Every call returns a distinct
// event, even for identical durations: each represents an independent
// scheduling request.
func Time(d time.Duration) *Event {
	return &Event{kind: KindTime, dur: d, seq: timeSeq.Add(1)}
}

// ProcessExit describes the termination of the child process pid.
func ProcessExit(pid int) *Event {
	return cached(KindProcessExit,
		func(e *Event) bool { return e.pid == pid },
		func() *Event { return &Event{kind: KindProcessExit, pid: pid} })
}

// ProcessSignal describes delivery of the OS signal sig.
func ProcessSignal(sig syscall.Signal) *Event {
	return cached(KindProcessSignal,
		func(e *Event) bool { return e.sig == sig },
		func() *Event { return &Event{kind: KindProcessSignal, sig: sig} })
}

// IoReceive describes readability of descriptor fd.
func IoReceive(fd int) *Event {
	return cached(KindIoReceive,
		func(e *Event) bool { return e.fd == fd },
		func() *Event { return &Event{kind: KindIoReceive, fd: fd} })
}

// IoTransmit describes writability of descriptor fd.
func IoTransmit(fd int) *Event {
	return cached(KindIoTransmit,
		func(e *Event) bool { return e.fd == fd },
		func() *Event { return &Event{kind: KindIoTransmit, fd: fd} })
}

// Never describes a condition that never becomes ready.
func Never() *Event { return &Event{kind: KindNever} }

// Actuate describes the meta notification fired once each time a link
// successfully enters a scheduler's ready index.
func Actuate() *Event { return &Event{kind: KindMetaActuate} }

// Terminate describes the meta notification fired for each outstanding
// non-fired link discarded by a scheduler's close.
func Terminate() *Event { return &Event{kind: KindMetaTerminate} }

// Exception describes the meta notification fired when a task or link
// callback panics during execute.
func Exception() *Event { return &Event{kind: KindMetaException} }

// Kind returns the union discriminator.
func (e *Event) Kind() Kind { return e.kind }

// Duration returns the delay of a Time event; zero for other kinds.
func (e *Event) Duration() time.Duration { return e.dur }

// PID returns the process id of a ProcessExit event.
func (e *Event) PID() int { return e.pid }

// Signal returns the signal of a ProcessSignal event.
func (e *Event) Signal() syscall.Signal { return e.sig }

// FD returns the descriptor of an IoReceive/IoTransmit event.
func (e *Event) FD() int { return e.fd }

// String renders the event for logs.
func (e *Event) String() string {
	switch e.kind {
	case KindTime:
		return fmt.Sprintf("time(%s)#%d", e.dur, e.seq)
	case KindProcessExit:
		return fmt.Sprintf("process-exit(%d)", e.pid)
	case KindProcessSignal:
		return fmt.Sprintf("process-signal(%d)", e.sig)
	case KindIoReceive, KindIoTransmit:
		return fmt.Sprintf("%s(%d)", e.kind, e.fd)
	}
	return e.kind.String()
}
