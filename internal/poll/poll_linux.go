//go:build linux
// +build linux

// File: internal/poll/poll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) readiness primitive with an eventfd wake descriptor.

package poll

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Poller multiplexes readiness over one epoll instance. The wake descriptor
// is registered up front so another thread can force Wait to return without
// touching any watched channel.
type Poller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

// New creates an epoll instance with an armed eventfd wake descriptor.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakefd: %w", err)
	}
	return &Poller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func epollBits(mode Mode) uint32 {
	var bits uint32
	if mode&ModeReceive != 0 {
		bits |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if mode&ModeTransmit != 0 {
		bits |= unix.EPOLLOUT
	}
	return bits
}

// Add registers fd for the given mode (level-triggered).
func (p *Poller) Add(fd int, mode Mode) error {
	ev := unix.EpollEvent{Events: epollBits(mode), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Mod changes the registered mode for fd.
func (p *Poller) Mod(fd int, mode Mode) error {
	ev := unix.EpollEvent{Events: epollBits(mode), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Del removes fd from the interest set. Removing an already-closed
// descriptor reports EBADF, which callers treat as already-gone.
func (p *Poller) Del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		if err == unix.EBADF || err == unix.ENOENT {
			return nil
		}
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Resize sets the readiness-table capacity for subsequent Wait calls.
func (p *Poller) Resize(maxEvents int) {
	if maxEvents > 0 {
		p.events = make([]unix.EpollEvent, maxEvents)
	}
}

// Capacity returns the current readiness-table capacity.
func (p *Poller) Capacity() int { return len(p.events) }

// Wait blocks up to timeout (Forever blocks indefinitely, 0 polls) and
// fills out with readiness notifications. Wake-ups and EINTR both return
// n == 0 with a nil error; the caller decides whether to loop.
func (p *Poller) Wait(timeout time.Duration, out []Ready) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}
	limit := len(p.events)
	if len(out) < limit {
		limit = len(out)
	}
	if limit == 0 {
		return 0, nil
	}
	n, err := unix.EpollWait(p.epfd, p.events[:limit], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	ready := 0
	for i := 0; i < n; i++ {
		ev := p.events[i]
		if int(ev.Fd) == p.wakefd {
			p.drainWake()
			continue
		}
		out[ready] = Ready{
			FD:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			Failed:   ev.Events&unix.EPOLLERR != 0,
		}
		ready++
	}
	return ready, nil
}

// Wake forces a blocked Wait to return. Safe from any thread; concurrent
// wakes coalesce inside the eventfd counter.
func (p *Poller) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	for {
		_, err := unix.Write(p.wakefd, one[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil // counter saturated, wake already pending
		}
		if err != nil {
			return fmt.Errorf("eventfd write: %w", err)
		}
		return nil
	}
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// Close releases the epoll and wake descriptors.
func (p *Poller) Close() error {
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
