// Package timer implements the deadline queue used to detect idle,
// keep-alive, and in-flight-request timeouts on a connection.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Kind distinguishes why a deadline was armed; each kind has its own
// default duration and re-arm behavior, decided by the caller that adds
// the entry.
type Kind int

const (
	// KindIdle fires when an accepted connection has sent nothing at
	// all for too long.
	KindIdle Kind = iota
	// KindKeepAlive fires when a connection between requests has gone
	// quiet past its negotiated keep-alive window.
	KindKeepAlive
	// KindRequest fires when a request has begun processing but not
	// finished within the allowed window, independent of keep-alive.
	KindRequest
)

// Default durations per spec: idle connections get 30 minutes, an
// established keep-alive connection gets 65 seconds between requests,
// and a single in-flight request gets 30 seconds to complete.
const (
	DefaultIdleTimeout      = 1800 * time.Second
	DefaultKeepAliveTimeout = 65 * time.Second
	DefaultRequestTimeout   = 30 * time.Second

	// sweepInterval matches the original implementation's 500ms poll.
	sweepInterval = 500 * time.Millisecond
)

// Entry is one armed deadline. Sequence must be compared by the caller
// against the connection's current Sequence before acting on an expired
// entry — the connection slot may have been recycled since the entry
// was armed.
type Entry struct {
	Deadline time.Time
	Kind     Kind
	Sequence uint64
	Payload  any

	rearmAfter time.Duration
	rearm      bool
	canceled   bool
}

// Wheel is an ordered, sequence-tagged deadline queue. Entries are kept
// sorted by Deadline; volumes per worker are small enough (one entry per
// live connection at a time) that a sorted slice outperforms a heap in
// practice and is far simpler to reason about.
type Wheel struct {
	mu      sync.Mutex
	entries []*Entry
}

// New returns an empty Wheel.
func New() *Wheel {
	return &Wheel{}
}

// Add arms a new deadline. If rearmAfter is non-zero, an expiry that the
// monitor's callback does not veto gets automatically reinserted
// rearmAfter past the firing time (used for KindKeepAlive, mirroring the
// original's "not kicking -> restart the clock" behavior).
func (w *Wheel) Add(deadline time.Time, kind Kind, sequence uint64, payload any, rearmAfter time.Duration) *Entry {
	e := &Entry{
		Deadline:   deadline,
		Kind:       kind,
		Sequence:   sequence,
		Payload:    payload,
		rearmAfter: rearmAfter,
		rearm:      rearmAfter > 0,
	}
	w.mu.Lock()
	w.insert(e)
	w.mu.Unlock()
	return e
}

// insert keeps entries sorted ascending by Deadline. Must hold w.mu.
func (w *Wheel) insert(e *Entry) {
	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].Deadline.After(e.Deadline)
	})
	w.entries = append(w.entries, nil)
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = e
}

// Cancel marks an entry so a future sweep skips it instead of firing,
// used when a connection completes normally before its deadline.
func (w *Wheel) Cancel(e *Entry) {
	if e == nil {
		return
	}
	w.mu.Lock()
	e.canceled = true
	w.mu.Unlock()
}

// ExpireFunc decides, for one fired entry, whether it should be rearmed
// rather than treated as a real timeout (e.g. the caller may have
// globally disabled kicking). It returns true to suppress the timeout
// and re-arm the entry for another rearmAfter window.
type ExpireFunc func(e *Entry) (rearm bool)

// Sweep removes and reports every entry whose Deadline is at or before
// now. Canceled entries are dropped silently. An entry configured with
// rearmAfter is reinserted (now + rearmAfter) instead of being reported
// when onExpire returns true; otherwise it is returned to the caller as
// a genuine timeout.
func (w *Wheel) Sweep(now time.Time, onExpire ExpireFunc) []*Entry {
	var fired []*Entry

	w.mu.Lock()
	i := 0
	for i < len(w.entries) && !w.entries[i].Deadline.After(now) {
		i++
	}
	due := w.entries[:i]
	w.entries = w.entries[i:]
	w.mu.Unlock()

	var rearmed []*Entry
	for _, e := range due {
		if e.canceled {
			continue
		}
		if e.rearm && onExpire != nil && onExpire(e) {
			e.Deadline = now.Add(e.rearmAfter)
			rearmed = append(rearmed, e)
			continue
		}
		fired = append(fired, e)
	}

	if len(rearmed) > 0 {
		w.mu.Lock()
		for _, e := range rearmed {
			w.insert(e)
		}
		w.mu.Unlock()
	}

	return fired
}

// Len reports how many entries are currently armed.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Run blocks, sweeping every 500ms and invoking onFired for each genuine
// timeout, until stop is closed.
func (w *Wheel) Run(stop <-chan struct{}, onExpire ExpireFunc, onFired func(*Entry)) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, e := range w.Sweep(now, onExpire) {
				onFired(e)
			}
		}
	}
}
