// File: matrix/matrix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Matrix pools Arrays, each looped by a dedicated worker goroutine, and
// marshals their transfer snapshots back onto the main scheduler through a
// supplied synchronize callback. That callback is the only path by which a
// background I/O thread touches application state.

package matrix

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/momentics/kio/api"
	"github.com/momentics/kio/control"
	"github.com/momentics/kio/reactor"
)

// Synchronize marshals fn onto the owning scheduler's thread, typically
// Scheduler.Enqueue.
type Synchronize func(fn func())

// Deliver consumes one cycle's transfer snapshot on the scheduler thread.
type Deliver func(batch []reactor.Transfer)

// Matrix is a growable pool of Arrays with per-Array worker goroutines,
// load-balanced on acquire and auto-evicted when idle.
type Matrix struct {
	cfg         control.MatrixConfig
	poll        control.PollConfig
	synchronize Synchronize
	deliver     Deliver

	mu   sync.Mutex
	live []*reactor.Array

	wg         sync.WaitGroup
	terminated atomic.Bool

	logger  *slog.Logger
	metrics *control.Metrics
}

// Option configures a Matrix.
type Option func(*Matrix)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matrix) { m.logger = l }
}

// WithMetrics attaches otel instruments.
func WithMetrics(mt *control.Metrics) Option {
	return func(m *Matrix) { m.metrics = mt }
}

// New creates an empty Matrix. Arrays and workers are allocated on demand by
// Acquire.
func New(cfg control.Config, synchronize Synchronize, deliver Deliver, opts ...Option) *Matrix {
	m := &Matrix{
		cfg:         cfg.Matrix,
		poll:        cfg.Poll,
		synchronize: synchronize,
		deliver:     deliver,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire distributes chs over the pool: the least-loaded live array takes
// what fits under channels_per_array, overflow triggers allocation of a new
// array plus worker, and every touched group is force-flushed.
func (m *Matrix) Acquire(chs ...*reactor.Channel) error {
	if m.terminated.Load() {
		return api.NewTransition("matrix", "acquire", "terminated")
	}
	for len(chs) > 0 {
		m.mu.Lock()
		a := m.leastLoadedLocked()
		room := 0
		if a != nil {
			room = m.cfg.ChannelsPerArray - a.Volume()
		}
		if a == nil || room <= 0 {
			var err error
			a, err = m.allocateLocked()
			if err != nil {
				m.mu.Unlock()
				return err
			}
			room = m.cfg.ChannelsPerArray
		}
		m.mu.Unlock()

		batch := chs
		if len(batch) > room {
			batch = chs[:room]
		}
		chs = chs[len(batch):]
		for _, c := range batch {
			if err := a.Acquire(c); err != nil {
				return err
			}
		}
		a.Force()
	}
	return nil
}

// leastLoadedLocked returns the live array with the smallest volume, or nil.
func (m *Matrix) leastLoadedLocked() *reactor.Array {
	var best *reactor.Array
	for _, a := range m.live {
		if a.Terminated() {
			continue
		}
		if best == nil || a.Volume() < best.Volume() {
			best = a
		}
	}
	return best
}

// allocateLocked adds a fresh array to the live set and starts its worker.
func (m *Matrix) allocateLocked() (*reactor.Array, error) {
	a, err := reactor.NewArray(m.poll.MaxEvents)
	if err != nil {
		return nil, err
	}
	m.live = append(m.live, a)
	m.wg.Add(1)
	go m.worker(a)
	m.metrics.ArrayAdded()
	m.logger.Debug("array allocated", "array", a.ID())
	return a, nil
}

// removeLive atomically removes a from the live set, reporting whether it
// was still present. Failing here means a racing path removed it first.
func (m *Matrix) removeLive(a *reactor.Array) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.live {
		if cur == a {
			m.live = append(m.live[:i], m.live[i+1:]...)
			return true
		}
	}
	return false
}

// addLive reinstates a resurrected array.
func (m *Matrix) addLive(a *reactor.Array) {
	m.mu.Lock()
	m.live = append(m.live, a)
	m.mu.Unlock()
}

// worker loops one array: poll-and-dispatch, snapshot delivery, and the
// two-phase idle eviction. The tentative-remove then grace-period structure
// closes the window where Acquire selects an array just as its worker
// decides to evict it.
func (m *Matrix) worker(a *reactor.Array) {
	defer m.wg.Done()
	countdown := m.cfg.ExitAtZero
	for {
		if !m.cycleAndDeliver(a) {
			break
		}
		if a.Terminated() {
			countdown = 0
		} else if a.Volume() > 0 {
			countdown = m.cfg.ExitAtZero
			continue
		} else {
			countdown--
			if countdown > 0 {
				continue
			}
		}

		if m.removeLive(a) && !a.Terminated() {
			if m.graceResurrect(a) {
				m.addLive(a)
				countdown = m.cfg.ExitAtZero
				continue
			}
			a.Terminate()
		} else {
			// Lost the removal race (or externally terminated): no racing
			// acquire can still select this array, terminate immediately.
			a.Terminate()
		}
		m.cycleAndDeliver(a) // final drain reports member terminations
		break
	}
	_ = a.Close()
	m.metrics.ArrayEvicted()
	m.logger.Debug("array worker exit", "array", a.ID())
}

// cycleAndDeliver runs one cycle and marshals a non-empty snapshot onto the
// scheduler. Reports false once the array refuses further cycles.
func (m *Matrix) cycleAndDeliver(a *reactor.Array) bool {
	if err := a.Cycle(m.cfg.CycleTimeout); err != nil {
		return false
	}
	snap, err := a.Transfer()
	if err != nil || len(snap) == 0 {
		return true
	}
	// The array reuses its snapshot storage next cycle; the batch crossing
	// threads must be a copy.
	batch := append([]reactor.Transfer(nil), snap...)
	m.synchronize(func() { m.deliver(batch) })
	return true
}

// graceResurrect cycles through the grace countdown after a tentative
// removal. Reports true when a racing acquire repopulated the array.
func (m *Matrix) graceResurrect(a *reactor.Array) bool {
	for i := 0; i < m.cfg.GraceCycles; i++ {
		if !m.cycleAndDeliver(a) {
			return false
		}
		if a.Terminated() {
			return false
		}
		if a.Volume() > 0 {
			return true
		}
	}
	return false
}

// Force makes every live array's next cycle return without blocking.
func (m *Matrix) Force() {
	for _, a := range m.snapshotLive() {
		a.Force()
	}
}

// Terminate shuts the pool down: every array is terminated, every worker
// drains its final cycle and exits. Idempotent.
func (m *Matrix) Terminate() {
	if !m.terminated.CompareAndSwap(false, true) {
		m.wg.Wait()
		return
	}
	for _, a := range m.snapshotLive() {
		a.Terminate()
	}
	m.wg.Wait()
}

// Void is the post-fork teardown: drop the pool without cycles or
// callbacks. Worker goroutines do not survive a fork, so none are joined.
func (m *Matrix) Void() {
	m.terminated.Store(true)
	m.mu.Lock()
	arrays := m.live
	m.live = nil
	m.mu.Unlock()
	for _, a := range arrays {
		_ = a.Close()
	}
}

// Volume returns the total live channel count across the pool.
func (m *Matrix) Volume() int {
	total := 0
	for _, a := range m.snapshotLive() {
		total += a.Volume()
	}
	return total
}

// Arrays returns the current live-set size.
func (m *Matrix) Arrays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// RegisterProbes exposes per-array volumes to a debug probe registry.
func (m *Matrix) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterGauges("matrix", func() map[string]int {
		state := make(map[string]int)
		for _, a := range m.snapshotLive() {
			state[a.ID()] = a.Volume()
		}
		return state
	})
}

func (m *Matrix) snapshotLive() []*reactor.Array {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*reactor.Array(nil), m.live...)
}
