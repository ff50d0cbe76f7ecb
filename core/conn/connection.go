// Package conn implements the per-connection state machine and the
// bounded pool of Connection slots an event loop worker draws from.
package conn

import (
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/flowgate/httpd/core/buffer"
	"github.com/flowgate/httpd/core/http"
	"github.com/flowgate/httpd/core/pools"
	"github.com/flowgate/httpd/core/security"
)

// State is a connection's position in the WAITING -> READING ->
// PROCESSING -> WRITING -> {WAITING|CLOSING} lifecycle.
type State int

const (
	StateWaiting State = iota
	StateReading
	StateProcessing
	StateWriting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateReading:
		return "READING"
	case StateProcessing:
		return "PROCESSING"
	case StateWriting:
		return "WRITING"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection is one accepted socket's full mutable state: its buffers,
// its parser, its in-flight request/response, and the bookkeeping that
// lets timers and the reclaimer tell a live connection apart from a
// closed slot that has already been reused.
//
// Sequence is bumped by BumpSequence the instant the connection is
// closed and enqueued for reclaim, before its slot is ever recycled.
// Any component that holds onto a Connection across an async boundary
// (a timer wheel entry, a reclaim queue entry, a worker-pool job) must
// capture the Sequence at enqueue time and compare it before acting —
// a mismatch means the slot has been reused for a different socket and
// the stale reference must be a no-op.
type Connection struct {
	FD       int
	Remote   net.Addr
	State    State
	Sequence uint64

	ReadBuf  *buffer.Buffer
	WriteBuf *buffer.Buffer

	Parser  http.Parser
	Request *http.Request

	LastActive time.Time
	CreatedAt  time.Time

	// KeepAlive reflects the negotiated persistence of the current
	// request; checked after each response is fully written.
	KeepAlive bool

	// TimerHandle is an opaque token the timer wheel hands back from
	// Add so the connection (or the reclaimer) can later cancel or
	// re-arm it without the connection needing to know the wheel's
	// internal layout.
	TimerHandle any

	// PendingWrites is zeroed when the connection is reset and is not
	// otherwise updated; outstanding send-queue writes are counted by
	// Guard (IncrementSendCount/DecrementSendCount) instead.
	PendingWrites int

	// Guard holds this connection's flood-detection and send-queue
	// backpressure counters. It is allocated once per slot and reset
	// (not reallocated) each time the slot is recycled.
	Guard *security.Guard

	// WriteMu guards WriteBuf and the draining write syscalls against
	// the one interleave the event-loop's normal single-goroutine-owns-
	// a-connection rule doesn't cover: a background send-queue drainer
	// finishing a deferred large write at the same time the I/O thread's
	// own write-readiness handler runs for the same fd. Every other field
	// is touched only by the worker goroutine that owns this slot.
	WriteMu sync.Mutex
}

// Write implements http.ResponseWriter by staging bytes into the
// connection's write buffer; the event loop's write handler is
// responsible for actually flushing it to the fd.
func (c *Connection) Write(p []byte) {
	c.WriteBuf.Append(p)
}

// RawFD implements http.ResponseWriter, exposing the underlying socket
// fd for core/sendfile's zero-copy transfers.
func (c *Connection) RawFD() int {
	return c.FD
}

// Flush implements http.ResponseWriter by synchronously writing out
// whatever is currently staged in WriteBuf via blocking syscall writes.
// This is only used by the sendfile path, which must guarantee response
// headers are actually on the wire before streaming a file's bytes
// directly into the same fd out of band; the normal request/response
// path leaves draining to the event loop's non-blocking write handler.
func (c *Connection) Flush() error {
	for c.WriteBuf.Len() > 0 {
		n, err := unix.Write(c.FD, c.WriteBuf.Peek())
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		c.WriteBuf.Consume(n)
	}
	return nil
}

// BumpSequence invalidates every outstanding reference to this slot
// (timer wheel entries, reclaim queue entries, in-flight worker-pool
// jobs) that captured the prior Sequence. Per the enqueue-for-reclaim
// contract, this must happen the moment the connection is torn down
// and handed to the reclaimer — not later when the slot is actually
// reused — so a job still in flight during the reclaim grace window
// observes the mismatch and no-ops instead of writing into an fd that
// has already been closed.
func (c *Connection) BumpSequence() {
	c.Sequence++
}

// reset clears a Connection back to its zero-ish state for reuse. It
// does not touch Sequence: that was already bumped by BumpSequence when
// the connection was closed and enqueued for reclaim, invalidating
// stale references up front rather than only once the slot is recycled.
func (c *Connection) reset() {
	c.FD = -1
	c.Remote = nil
	c.State = StateWaiting
	if c.ReadBuf != nil {
		c.ReadBuf.Reset()
	}
	if c.WriteBuf != nil {
		c.WriteBuf.Reset()
	}
	c.Parser.Reset()
	c.Request = nil
	c.LastActive = time.Time{}
	c.CreatedAt = time.Time{}
	c.KeepAlive = false
	c.TimerHandle = nil
	c.PendingWrites = 0
	if c.Guard != nil {
		c.Guard.Reset()
	}
}

// bind prepares a freshly acquired Connection for a newly accepted fd.
func (c *Connection) bind(fd int, remote net.Addr) {
	c.FD = fd
	c.Remote = remote
	c.State = StateReading
	c.KeepAlive = true
	now := time.Now()
	c.LastActive = now
	c.CreatedAt = now
	if c.ReadBuf == nil {
		c.ReadBuf = pools.AcquireBuffer(pools.MediumBufferSize)
	}
	if c.WriteBuf == nil {
		c.WriteBuf = pools.AcquireBuffer(pools.SmallBufferSize)
	}
	if c.Guard == nil {
		c.Guard = security.New()
	}
}
