// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler is the single event loop driving dispatched Links and enqueued
// tasks: a timer min-heap, a task FIFO, and a readiness wait with
// cross-thread wakeup. Exactly one thread owns a Scheduler; Enqueue and
// Interrupt are the only entry points safe from other threads.

package scheduler

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/kio/api"
	"github.com/momentics/kio/control"
	"github.com/momentics/kio/event"
	"github.com/momentics/kio/internal/poll"
)

// ioKey indexes readiness links by descriptor and direction.
type ioKey struct {
	fd       int
	transmit bool
}

// Scheduler owns the timer heap, task FIFO and readiness handle.
type Scheduler struct {
	mu          sync.Mutex
	tasks       *queue.Queue // api.Task FIFO
	fired       *queue.Queue // *event.Link ready-but-not-executed FIFO
	pendingFire map[*event.Link]bool

	timers     timerHeap
	timerIndex map[*event.Link]*timerEntry
	ioLinks    map[ioKey]*event.Link
	ioModes    map[int]poll.Mode
	sigLinks   map[syscall.Signal]*event.Link
	exitLinks  map[int]*event.Link
	index      map[*event.Event]*event.Link // outstanding non-meta links

	actuate   *event.Link // fired on each successful dispatch
	trap      *event.Link // routes callback panics
	terminate *event.Link // fired per link discarded by Close

	poller  *poll.Poller
	waiting atomic.Bool
	tripped atomic.Bool
	closed  atomic.Bool

	sigOnce        sync.Once
	sigCh          chan os.Signal
	sigStop        chan struct{}
	pendingSignals []syscall.Signal

	logger  *slog.Logger
	metrics *control.Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics attaches otel instruments.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithPollDepth sets the readiness-table capacity.
func WithPollDepth(n int) Option {
	return func(s *Scheduler) { s.poller.Resize(n) }
}

// New creates an open Scheduler.
func New(opts ...Option) (*Scheduler, error) {
	p, err := poll.New(control.DefaultConfig().Poll.MaxEvents)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		tasks:       queue.New(),
		fired:       queue.New(),
		pendingFire: make(map[*event.Link]bool),
		timerIndex:  make(map[*event.Link]*timerEntry),
		ioLinks:     make(map[ioKey]*event.Link),
		ioModes:     make(map[int]poll.Mode),
		sigLinks:    make(map[syscall.Signal]*event.Link),
		exitLinks:   make(map[int]*event.Link),
		index:       make(map[*event.Event]*event.Link),
		poller:      p,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enqueue appends task to the FIFO. This is the one thread-safe path for
// cross-thread work submission: a Scheduler blocked in Wait is woken.
func (s *Scheduler) Enqueue(task api.Task) {
	s.mu.Lock()
	s.tasks.Add(task)
	s.mu.Unlock()
	// The wake is unconditional. Waking only while the waiting flag is set
	// loses tasks enqueued between Wait's deadline computation and its park;
	// the eventfd counter persists, so an early wake just makes the next
	// poll return at once.
	_ = s.poller.Wake()
}

// Dispatch hands l to the scheduler. Re-dispatching a previously dispatched
// link is a programming error. A successful dispatch of a non-meta link
// fires the MetaActuate link, if one is registered.
func (s *Scheduler) Dispatch(l *event.Link, cyclic bool) error {
	if s.closed.Load() {
		return api.NewTransition("scheduler", "dispatch", "closed")
	}
	if err := l.MarkDispatched(cyclic); err != nil {
		return err
	}

	ev := l.Event()
	s.mu.Lock()
	switch ev.Kind() {
	case event.KindTime:
		e := &timerEntry{deadline: time.Now().Add(ev.Duration()), link: l}
		s.timers.push(e)
		s.timerIndex[l] = e
		s.index[ev] = l
	case event.KindNever:
		s.index[ev] = l
	case event.KindProcessExit:
		s.exitLinks[ev.PID()] = l
		s.index[ev] = l
		s.watchSignal(syscall.SIGCHLD)
	case event.KindProcessSignal:
		s.sigLinks[ev.Signal()] = l
		s.index[ev] = l
		s.watchSignal(ev.Signal())
	case event.KindIoReceive, event.KindIoTransmit:
		if err := s.registerIOLocked(ev, l); err != nil {
			s.mu.Unlock()
			return err
		}
		s.index[ev] = l
	case event.KindMetaActuate:
		s.actuate = l
	case event.KindMetaException:
		s.trap = l
	case event.KindMetaTerminate:
		s.terminate = l
	}
	actuate := s.actuate
	s.mu.Unlock()

	if isMeta(ev.Kind()) {
		return nil
	}
	if actuate != nil && actuate != l && !actuate.Cancelled() {
		actuate.Invoke()
	}
	// Unconditional, same as Enqueue: the new deadline may be earlier than
	// the one a concurrent Wait computed before parking.
	_ = s.poller.Wake()
	return nil
}

func isMeta(k event.Kind) bool {
	return k == event.KindMetaActuate || k == event.KindMetaTerminate || k == event.KindMetaException
}

// registerIOLocked adds or widens the poller registration for an I/O link.
func (s *Scheduler) registerIOLocked(ev *event.Event, l *event.Link) error {
	fd := ev.FD()
	mode := poll.ModeReceive
	transmit := ev.Kind() == event.KindIoTransmit
	if transmit {
		mode = poll.ModeTransmit
	}
	prev, registered := s.ioModes[fd]
	if registered {
		if err := s.poller.Mod(fd, prev|mode); err != nil {
			return err
		}
		s.ioModes[fd] = prev | mode
	} else {
		if err := s.poller.Add(fd, mode); err != nil {
			return err
		}
		s.ioModes[fd] = mode
	}
	s.ioLinks[ioKey{fd: fd, transmit: transmit}] = l
	return nil
}

// dropIOLocked narrows or removes the poller registration for an I/O link.
func (s *Scheduler) dropIOLocked(ev *event.Event) {
	fd := ev.FD()
	transmit := ev.Kind() == event.KindIoTransmit
	key := ioKey{fd: fd, transmit: transmit}
	if _, ok := s.ioLinks[key]; !ok {
		return
	}
	delete(s.ioLinks, key)
	removed := poll.ModeReceive
	if transmit {
		removed = poll.ModeTransmit
	}
	rest := s.ioModes[fd] &^ removed
	if rest == 0 {
		delete(s.ioModes, fd)
		_ = s.poller.Del(fd)
		return
	}
	s.ioModes[fd] = rest
	_ = s.poller.Mod(fd, rest)
}

// watchSignal lazily starts the forwarding goroutine and subscribes sig.
func (s *Scheduler) watchSignal(sig syscall.Signal) {
	s.sigOnce.Do(func() {
		s.sigCh = make(chan os.Signal, 16)
		s.sigStop = make(chan struct{})
		go s.forwardSignals()
	})
	signal.Notify(s.sigCh, sig)
}

// forwardSignals marshals OS signals onto the scheduler thread: park the
// signal, then wake the poller so Wait observes it.
func (s *Scheduler) forwardSignals() {
	for {
		select {
		case sig := <-s.sigCh:
			ossig, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.pendingSignals = append(s.pendingSignals, ossig)
			s.mu.Unlock()
			_ = s.poller.Wake()
		case <-s.sigStop:
			return
		}
	}
}

// Cancel marks l cancelled and removes it from the scheduler's indexes.
// Safe to call on an already-fired or already-cancelled link.
func (s *Scheduler) Cancel(l *event.Link) {
	l.MarkCancelled()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timerIndex[l]; ok {
		if e.heapIdx >= 0 {
			s.timers.remove(e.heapIdx)
		}
		e.cancelled = true
		delete(s.timerIndex, l)
	}
	ev := l.Event()
	switch ev.Kind() {
	case event.KindIoReceive, event.KindIoTransmit:
		s.dropIOLocked(ev)
	case event.KindProcessExit:
		if s.exitLinks[ev.PID()] == l {
			delete(s.exitLinks, ev.PID())
		}
	case event.KindProcessSignal:
		if s.sigLinks[ev.Signal()] == l {
			delete(s.sigLinks, ev.Signal())
		}
	case event.KindMetaActuate:
		if s.actuate == l {
			s.actuate = nil
		}
	case event.KindMetaException:
		if s.trap == l {
			s.trap = nil
		}
	case event.KindMetaTerminate:
		if s.terminate == l {
			s.terminate = nil
		}
	}
	if s.index[ev] == l {
		delete(s.index, ev)
	}
}

// Wait blocks until a timer fires, a readiness event occurs, a task is
// enqueued, or Interrupt trips; timeout < 0 blocks on the earliest deadline
// alone. Ready links are moved to the fired FIFO without executing anything;
// the return value counts them. Returns immediately once closed.
func (s *Scheduler) Wait(timeout time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, nil
	}

	s.mu.Lock()
	effective := timeout
	if e := s.nextDeadlineLocked(); e != nil {
		delta := time.Until(e.deadline)
		if delta < 0 {
			delta = 0
		}
		if effective < 0 || delta < effective {
			effective = delta
		}
	}
	if s.tasks.Length() > 0 || s.fired.Length() > 0 || len(s.pendingSignals) > 0 {
		effective = 0
	}
	s.mu.Unlock()

	s.waiting.Store(true)
	ready := make([]poll.Ready, s.poller.Capacity())
	n, err := s.poller.Wait(effective, ready)
	s.waiting.Store(false)
	s.tripped.Store(false)
	if err != nil {
		return 0, err
	}
	return s.collect(ready[:n]), nil
}

// nextDeadlineLocked returns the earliest live timer entry, discarding
// cancelled roots lazily.
func (s *Scheduler) nextDeadlineLocked() *timerEntry {
	for {
		e := s.timers.peek()
		if e == nil {
			return nil
		}
		if e.cancelled || e.link.Cancelled() {
			s.timers.pop()
			delete(s.timerIndex, e.link)
			continue
		}
		return e
	}
}

// collect moves every link whose event became ready onto the fired FIFO and
// returns how many it moved.
func (s *Scheduler) collect(ready []poll.Ready) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0

	// Expired timers.
	now := time.Now()
	for {
		e := s.nextDeadlineLocked()
		if e == nil || e.deadline.After(now) {
			break
		}
		s.timers.pop()
		delete(s.timerIndex, e.link)
		if s.fireLocked(e.link) {
			count++
		}
	}

	// Descriptor readiness.
	for _, r := range ready {
		if r.Readable || r.Hangup || r.Failed {
			if l, ok := s.ioLinks[ioKey{fd: r.FD, transmit: false}]; ok {
				if s.fireLocked(l) {
					count++
				}
				if !l.Cyclic() {
					s.dropIOLocked(l.Event())
				}
			}
		}
		if r.Writable {
			if l, ok := s.ioLinks[ioKey{fd: r.FD, transmit: true}]; ok {
				if s.fireLocked(l) {
					count++
				}
				if !l.Cyclic() {
					s.dropIOLocked(l.Event())
				}
			}
		}
	}

	// Forwarded signals and reaped children.
	for _, sig := range s.pendingSignals {
		if sig == syscall.SIGCHLD {
			for _, pid := range reapChildren() {
				if l, ok := s.exitLinks[pid]; ok {
					if s.fireLocked(l) {
						count++
					}
					if !l.Cyclic() {
						delete(s.exitLinks, pid)
					}
				}
			}
		}
		if l, ok := s.sigLinks[sig]; ok {
			if s.fireLocked(l) {
				count++
			}
			if !l.Cyclic() {
				delete(s.sigLinks, sig)
			}
		}
	}
	s.pendingSignals = s.pendingSignals[:0]
	return count
}

// fireLocked queues l for execution. Cancelled links are tolerated and
// dropped; duplicate readiness for a not-yet-executed link coalesces.
func (s *Scheduler) fireLocked(l *event.Link) bool {
	if l.Cancelled() || s.pendingFire[l] {
		return false
	}
	s.pendingFire[l] = true
	s.fired.Add(l)
	return true
}

// Execute synchronously drains the fired links and the task FIFO once each,
// in FIFO order, and returns the count executed. A panic inside a callback
// is routed to the dispatched MetaException link; with none registered it
// propagates and is fatal to the executing thread.
func (s *Scheduler) Execute() int {
	s.mu.Lock()
	nFired := s.fired.Length()
	nTasks := s.tasks.Length()
	s.mu.Unlock()

	executed := 0
	for i := 0; i < nFired; i++ {
		s.mu.Lock()
		if s.fired.Length() == 0 {
			s.mu.Unlock()
			break
		}
		l := s.fired.Remove().(*event.Link)
		delete(s.pendingFire, l)
		s.mu.Unlock()

		if l.Cancelled() {
			continue
		}
		s.runProtected(l, l.Invoke)
		executed++
		s.metrics.LinkFired(1)
		s.settle(l)
	}

	for i := 0; i < nTasks; i++ {
		s.mu.Lock()
		if s.tasks.Length() == 0 {
			s.mu.Unlock()
			break
		}
		task := s.tasks.Remove().(api.Task)
		s.mu.Unlock()

		s.runProtected(nil, task)
		executed++
		s.metrics.TaskExecuted(1)
	}
	return executed
}

// settle finishes a fired link: one-shot links are cancelled and dropped
// from the index; cyclic timers re-arm with a fresh deadline.
func (s *Scheduler) settle(l *event.Link) {
	ev := l.Event()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !l.Cyclic() {
		l.MarkCancelled()
		if s.index[ev] == l {
			delete(s.index, ev)
		}
		return
	}
	if ev.Kind() == event.KindTime {
		e := &timerEntry{deadline: time.Now().Add(ev.Duration()), link: l}
		s.timers.push(e)
		s.timerIndex[l] = e
	}
}

// runProtected executes fn with per-callback panic containment.
func (s *Scheduler) runProtected(l *event.Link, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("callback panic: %v", r)
		}
		s.mu.Lock()
		trap := s.trap
		s.mu.Unlock()
		if trap == nil || trap.Cancelled() || !trap.InvokeException(l, err) {
			panic(r)
		}
		s.logger.Error("callback exception trapped", "error", err)
	}()
	fn()
}

// Interrupt trips a blocked Wait. Returns (true, true) when this call
// performed the trip, (false, true) when a trip is already pending
// (coalesced), and (false, false) when the scheduler was not waiting.
func (s *Scheduler) Interrupt() (tripped, waiting bool) {
	if s.tripped.Load() {
		return false, true
	}
	if !s.waiting.Load() {
		return false, false
	}
	if s.tripped.CompareAndSwap(false, true) {
		_ = s.poller.Wake()
		return true, true
	}
	return false, true
}

// RegisterProbes exposes queue and index depths to a debug probe registry.
func (s *Scheduler) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterGauges("scheduler", func() map[string]int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]int{
			"tasks":  s.tasks.Length(),
			"fired":  s.fired.Length(),
			"timers": s.timers.Len(),
			"links":  len(s.index),
		}
	})
}

// Closed reports whether Close has run.
func (s *Scheduler) Closed() bool { return s.closed.Load() }

// Close transitions the scheduler to closed, firing the MetaTerminate link
// once per discarded non-fired link. Idempotent: reports whether this call
// performed the transition. Tasks already enqueued (or enqueued later)
// remain executable; Wait returns immediately from now on.
func (s *Scheduler) Close() bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	discarded := make([]*event.Link, 0, len(s.index))
	for _, l := range s.index {
		if !l.Cancelled() && !s.pendingFire[l] {
			discarded = append(discarded, l)
		}
	}
	terminate := s.terminate
	for fd := range s.ioModes {
		_ = s.poller.Del(fd)
	}
	s.timers = s.timers[:0]
	s.timerIndex = make(map[*event.Link]*timerEntry)
	s.ioLinks = make(map[ioKey]*event.Link)
	s.ioModes = make(map[int]poll.Mode)
	s.sigLinks = make(map[syscall.Signal]*event.Link)
	s.exitLinks = make(map[int]*event.Link)
	s.index = make(map[*event.Event]*event.Link)
	s.mu.Unlock()

	for _, l := range discarded {
		if terminate != nil && !terminate.Cancelled() {
			terminate.Invoke()
		}
		l.MarkCancelled()
	}
	if s.sigCh != nil {
		signal.Stop(s.sigCh)
	}
	_ = s.poller.Wake()
	return true
}

// Void is the emergency teardown for a forked child: every structure is
// dropped without firing any callback.
func (s *Scheduler) Void() {
	s.closed.Store(true)
	s.mu.Lock()
	s.tasks = queue.New()
	s.fired = queue.New()
	s.pendingFire = make(map[*event.Link]bool)
	s.timers = nil
	s.timerIndex = make(map[*event.Link]*timerEntry)
	s.ioLinks = make(map[ioKey]*event.Link)
	s.ioModes = make(map[int]poll.Mode)
	s.sigLinks = make(map[syscall.Signal]*event.Link)
	s.exitLinks = make(map[int]*event.Link)
	s.index = make(map[*event.Event]*event.Link)
	s.mu.Unlock()
	if s.sigCh != nil {
		signal.Stop(s.sigCh)
		close(s.sigStop)
	}
	_ = s.poller.Close()
}
