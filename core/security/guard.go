// Package security implements the per-connection flood detector and
// send-queue backpressure counter.
package security

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ShortInterval and ShortMaxRequests bound how many requests a
	// connection may make in a short burst window.
	ShortInterval    = 100 * time.Millisecond
	ShortMaxRequests = 10

	// LongInterval and LongMaxRequests bound sustained request rate
	// over a longer window.
	LongInterval    = 60 * time.Second
	LongMaxRequests = 1000

	// MaxSendCount caps outstanding writes handed to the send queue
	// before a connection is considered backpressured.
	MaxSendCount = 1000
)

// Guard tracks flood-detection windows and outstanding send count for a
// single connection. It is not safe for concurrent use across
// goroutines other than the one owning the connection, except for the
// send-count counter which is atomic so a background drainer can
// decrement it independently of the I/O goroutine that increments it.
type Guard struct {
	mu sync.Mutex

	shortRequestCount int
	longRequestCount  int
	lastShortCheck    time.Time
	lastLongCheck     time.Time

	sendCount atomic.Int32

	// Sequence increments every time Reset is called, so a stale
	// reference to a recycled connection's Guard can detect that it
	// belongs to a different logical connection now.
	sequence atomic.Uint64
}

// New returns a freshly reset Guard.
func New() *Guard {
	g := &Guard{}
	g.Reset()
	return g
}

// Reset clears all counters, as happens when a connection slot is
// recycled for a new socket.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.shortRequestCount = 0
	g.longRequestCount = 0
	g.lastShortCheck = time.Time{}
	g.lastLongCheck = time.Time{}
	g.mu.Unlock()
	g.sendCount.Store(0)
	g.sequence.Add(1)
}

// Sequence returns the current generation counter.
func (g *Guard) Sequence() uint64 { return g.sequence.Load() }

// CheckFlood records one request and reports whether the connection has
// exceeded either the short burst window or the long sustained window.
// Once a window is judged to have tripped, the caller should close the
// connection; CheckFlood itself does not reset state on a trip so the
// caller can log before tearing down.
func (g *Guard) CheckFlood(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	tripped := false

	if g.lastShortCheck.IsZero() || now.Sub(g.lastShortCheck) >= ShortInterval {
		g.shortRequestCount = 1
		g.lastShortCheck = now
	} else {
		g.shortRequestCount++
		if g.shortRequestCount > ShortMaxRequests {
			tripped = true
		}
	}

	if g.lastLongCheck.IsZero() || now.Sub(g.lastLongCheck) >= LongInterval {
		g.longRequestCount = 1
		g.lastLongCheck = now
	} else {
		g.longRequestCount++
		if g.longRequestCount > LongMaxRequests {
			tripped = true
		}
	}

	return tripped
}

// IncrementSendCount marks one more write as outstanding in the send
// queue.
func (g *Guard) IncrementSendCount() { g.sendCount.Add(1) }

// DecrementSendCount marks one outstanding write as flushed.
func (g *Guard) DecrementSendCount() {
	for {
		v := g.sendCount.Load()
		if v <= 0 {
			return
		}
		if g.sendCount.CompareAndSwap(v, v-1) {
			return
		}
	}
}

// SendCount returns the current outstanding write count.
func (g *Guard) SendCount() int32 { return g.sendCount.Load() }

// SendQueueOverflowed reports whether outstanding writes exceed
// MaxSendCount.
func (g *Guard) SendQueueOverflowed() bool {
	return g.sendCount.Load() > MaxSendCount
}
