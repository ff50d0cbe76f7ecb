//go:build darwin || freebsd || netbsd || openbsd || dragonfly
// +build darwin freebsd netbsd openbsd dragonfly

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based I/O multiplexer. Read and write
// readiness are separate filters in kqueue (unlike epoll's single
// combined event mask), so Wait merges same-fd events from one batch
// before returning them to the caller, and the poller tracks each fd's
// currently registered interest so Modify only (de)registers the
// filters that actually changed.
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t

	mu        sync.Mutex
	interests map[int]Interest
}

// NewPoller creates a new Poller (BSD/macOS).
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	return &KqueuePoller{
		kqfd:      kqfd,
		events:    make([]unix.Kevent_t, 1024),
		interests: make(map[int]Interest),
	}, nil
}

func (p *KqueuePoller) changelist(fd int, from, to Interest) []unix.Kevent_t {
	var changes []unix.Kevent_t

	wantRead := to&Readable != 0
	hadRead := from&Readable != 0
	if wantRead && !hadRead {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else if !wantRead && hadRead {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}

	wantWrite := to&Writable != 0
	hadWrite := from&Writable != 0
	if wantWrite && !hadWrite {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else if !wantWrite && hadWrite {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}

	return changes
}

// Add starts watching fd for the given interest.
func (p *KqueuePoller) Add(fd int, interest Interest) error {
	p.mu.Lock()
	changes := p.changelist(fd, 0, interest)
	p.interests[fd] = interest
	p.mu.Unlock()

	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

// Modify changes fd's watched interest.
func (p *KqueuePoller) Modify(fd int, interest Interest) error {
	p.mu.Lock()
	prev := p.interests[fd]
	changes := p.changelist(fd, prev, interest)
	p.interests[fd] = interest
	p.mu.Unlock()

	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

// Remove stops watching fd entirely.
func (p *KqueuePoller) Remove(fd int) error {
	p.mu.Lock()
	prev := p.interests[fd]
	changes := p.changelist(fd, prev, 0)
	delete(p.interests, fd)
	p.mu.Unlock()

	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

// Wait waits for I/O events, merging same-fd read/write filters
// reported in one batch into a single Event.
func (p *KqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1_000_000,
		}
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != unix.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFD := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		e, ok := byFD[fd]
		if !ok {
			e = &Event{FD: fd}
			byFD[fd] = e
			order = append(order, fd)
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			e.Readable = true
		case unix.EVFILT_WRITE:
			e.Writable = true
		}
		if ev.Flags&unix.EV_EOF != 0 {
			e.HangUp = true
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			e.Err = true
		}
	}

	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFD[fd])
	}
	return out, nil
}

// Close closes the Poller.
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}

// SetNonblock sets non-blocking mode on fd.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
