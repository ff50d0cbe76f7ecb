// Package reclaim defers releasing a closed connection's pool slot
// until a grace window has elapsed, so a worker-pool job still holding a
// reference to the connection cannot race with its slot being handed to
// a brand new socket.
package reclaim

import (
	"sync"
	"time"
)

// DefaultGrace is how long a closed connection's slot is held before
// being handed back to the pool.
const DefaultGrace = 60 * time.Second

// pollInterval matches the cadence the monitor goroutine sweeps at.
const pollInterval = 200 * time.Millisecond

// entry pairs a released payload (typically a *conn.Connection, kept
// generic here so this package does not need to import core/conn) with
// the time it becomes eligible for release.
type entry struct {
	payload  any
	sequence uint64
	dueAt    time.Time
}

// Reclaimer batches pending releases and hands each one to a release
// callback only after its grace window has elapsed.
type Reclaimer struct {
	mu      sync.Mutex
	pending []entry
	grace   time.Duration
}

// New returns a Reclaimer using the given grace window (DefaultGrace if
// grace <= 0).
func New(grace time.Duration) *Reclaimer {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Reclaimer{grace: grace}
}

// Enqueue schedules payload (already removed from the poller and with
// its fd already closed by the caller) for release once the grace
// window elapses. sequence is the connection's generation at the moment
// of closing, so the eventual release callback can double check it
// still matches before acting — not strictly necessary since Reclaimer
// owns the only reference by then, but kept symmetric with how timers
// and worker jobs validate sequence.
func (r *Reclaimer) Enqueue(payload any, sequence uint64) {
	r.mu.Lock()
	r.pending = append(r.pending, entry{
		payload:  payload,
		sequence: sequence,
		dueAt:    time.Now().Add(r.grace),
	})
	r.mu.Unlock()
}

// Pending returns the number of entries still waiting out their grace
// window.
func (r *Reclaimer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Sweep releases every entry whose grace window has elapsed as of now,
// calling release for each in enqueue order.
func (r *Reclaimer) Sweep(now time.Time, release func(payload any, sequence uint64)) {
	r.mu.Lock()
	i := 0
	for i < len(r.pending) && !r.pending[i].dueAt.After(now) {
		i++
	}
	due := append([]entry(nil), r.pending[:i]...)
	r.pending = r.pending[i:]
	r.mu.Unlock()

	for _, e := range due {
		release(e.payload, e.sequence)
	}
}

// Run blocks, sweeping every 200ms and invoking release for each
// connection whose grace window has elapsed, until stop is closed.
func (r *Reclaimer) Run(stop <-chan struct{}, release func(payload any, sequence uint64)) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.Sweep(now, release)
		}
	}
}
