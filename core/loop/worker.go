// Package loop implements the per-worker event loop: one readiness
// multiplexer, its own bounded connection pool slice, and the
// timer/reclaim/send-queue monitors that keep a worker's connections
// honest, all wired together with errgroup so one goroutine's exit tears
// the rest down cleanly.
package loop

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/flowgate/httpd/core/conn"
	"github.com/flowgate/httpd/core/http"
	"github.com/flowgate/httpd/core/middleware"
	"github.com/flowgate/httpd/core/observability"
	"github.com/flowgate/httpd/core/poller"
	"github.com/flowgate/httpd/core/pools"
	"github.com/flowgate/httpd/core/reclaim"
	"github.com/flowgate/httpd/core/router"
	"github.com/flowgate/httpd/core/sendqueue"
	"github.com/flowgate/httpd/core/timer"
)

// Config bundles the tunables and shared collaborators a Worker needs.
// Router and Files are expected to be shared across every worker in a
// SO_REUSEPORT fleet; the pool, poller, timer wheel, reclaimer and send
// queue are per-worker so no cross-goroutine locking is needed on the
// hot path.
type Config struct {
	ID             int
	Addr           string
	Router         *router.Router
	Files          http.FileServer
	Jobs           *pools.WorkerPool
	MaxConnections int
	ReclaimGrace   time.Duration
	SendWorkers    int
	SendCapacity   int
	GzipMinBytes   int
	Metrics        *observability.Registry
}

// Worker runs one readiness-multiplexed accept/read/write loop plus its
// idle/keep-alive/request timeout monitor and deferred-reclaim sweeper.
// Grounded on core/engine.go's Engine, split across one instance per
// goroutine instead of a single shared map+mutex so N workers can listen
// on the same port via SO_REUSEPORT without contending on connection
// bookkeeping.
type Worker struct {
	id           int
	addr         string
	rtr          *router.Router
	files        http.FileServer
	jobs         *pools.WorkerPool
	gzipMinBytes int
	metrics      *observability.Registry

	poll  poller.Poller
	lfd   int
	pool  *conn.Pool
	wheel *timer.Wheel
	rcl   *reclaim.Reclaimer
	sendQ *sendqueue.Queue
}

// New constructs a Worker from cfg, defaulting unset tunables.
func New(cfg Config) *Worker {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10000
	}
	gzipMinBytes := cfg.GzipMinBytes
	if gzipMinBytes <= 0 {
		gzipMinBytes = 1024
	}
	return &Worker{
		id:           cfg.ID,
		addr:         cfg.Addr,
		rtr:          cfg.Router,
		files:        cfg.Files,
		jobs:         cfg.Jobs,
		gzipMinBytes: gzipMinBytes,
		metrics:      cfg.Metrics,
		pool:         conn.NewPool(maxConns),
		wheel:        timer.New(),
		rcl:          reclaim.New(cfg.ReclaimGrace),
		sendQ:        sendqueue.New(cfg.SendWorkers, cfg.SendCapacity),
	}
}

// Run binds a SO_REUSEPORT listener and drives the accept/read/write
// loop along with the timer, reclaim, and send-queue monitors until ctx
// is canceled or a fatal error occurs in any of them.
func (w *Worker) Run(ctx context.Context) error {
	lfd, err := listenReusePort(w.addr)
	if err != nil {
		return fmt.Errorf("worker %d: listen %s: %w", w.id, w.addr, err)
	}
	w.lfd = lfd
	defer unix.Close(w.lfd)

	p, err := poller.NewPoller()
	if err != nil {
		return fmt.Errorf("worker %d: new poller: %w", w.id, err)
	}
	w.poll = p
	defer w.poll.Close()

	if err := w.poll.Add(w.lfd, poller.Readable); err != nil {
		return fmt.Errorf("worker %d: watch listener: %w", w.id, err)
	}

	stop := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		close(stop)
		return nil
	})

	g.Go(func() error {
		w.wheel.Run(stop, w.onExpire, w.onTimeout)
		return nil
	})

	g.Go(func() error {
		w.rcl.Run(stop, w.onReclaim)
		return nil
	})

	g.Go(func() error {
		w.sendQ.Run(gctx)
		return nil
	})

	if w.metrics != nil {
		g.Go(func() error {
			w.metrics.PollPools(stop, time.Second, w.pool, w.jobs)
			return nil
		})
	}

	g.Go(func() error {
		return w.acceptLoop(gctx)
	})

	return g.Wait()
}

// acceptLoop is the readiness loop itself: wait for events, accept new
// connections off the listener, and dispatch read/write readiness to
// the owning Connection.
func (w *Worker) acceptLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := w.poll.Wait(100)
		if err != nil {
			log.Printf("worker %d: poller wait: %v", w.id, err)
			continue
		}

		for _, ev := range events {
			if ev.FD == w.lfd {
				w.acceptConnections()
				continue
			}
			w.handleEvent(ev)
		}
	}
}

// acceptConnections drains every pending connection off the listener
// (level-triggered readiness reports readable again immediately if one
// is left unaccepted).
func (w *Worker) acceptConnections() {
	for {
		nfd, sa, err := unix.Accept(w.lfd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			log.Printf("worker %d: accept: %v", w.id, err)
			return
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		c, ok := w.pool.Acquire(nfd, sockaddrToAddr(sa))
		if !ok {
			if w.metrics != nil {
				w.metrics.ConnectionsKicked.Inc()
			}
			unix.Close(nfd)
			continue
		}

		if err := w.poll.Add(nfd, poller.Readable); err != nil {
			w.pool.Release(c)
			unix.Close(nfd)
			continue
		}

		w.armIdle(c)
	}
}

// handleEvent reacts to one fd's readiness: hangup/error tears the
// connection down outright, otherwise a readable fd is read and a
// writable fd drains its pending output.
func (w *Worker) handleEvent(ev poller.Event) {
	c := w.pool.Lookup(ev.FD)
	if c == nil {
		return
	}

	if ev.HangUp || ev.Err {
		w.closeConnection(c)
		return
	}

	c.LastActive = time.Now()

	if ev.Readable {
		w.handleRead(c)
	}
	if ev.Writable {
		w.handleWrite(c)
	}
}

// handleRead pulls whatever is available off the socket into the
// connection's read buffer and feeds it through the parser, dispatching
// every fully parsed request (pipelining may yield more than one per
// read) to the worker pool.
func (w *Worker) handleRead(c *conn.Connection) {
	seq := c.Sequence

	for {
		tail := c.ReadBuf.WritableTail(4096)
		n, err := unix.Read(c.FD, tail)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			if err == unix.EINTR {
				continue
			}
			w.closeConnection(c)
			return
		}
		if n == 0 {
			w.closeConnection(c)
			return
		}
		c.ReadBuf.MarkWritten(n)
		if n < len(tail) {
			break
		}
	}

	if c.Guard.CheckFlood(time.Now()) {
		if w.metrics != nil {
			w.metrics.FloodKicks.Inc()
		}
		w.closeConnection(c)
		return
	}

	for {
		if c.Request == nil {
			c.Request = http.AcquireRequest()
		}

		consumed, status := c.Parser.Parse(c.ReadBuf.Peek(), c.Request)
		switch status {
		case http.NeedMore:
			return
		case http.Error:
			w.writeRaw(c, []byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
			w.closeConnection(c)
			return
		case http.Complete:
			c.ReadBuf.Consume(consumed)
			req := c.Request
			c.Request = nil
			c.State = conn.StateProcessing
			w.dispatch(c, seq, req)
		}

		if c.ReadBuf.Len() == 0 {
			return
		}
	}
}

// sendQueueThreshold is the response size above which dispatch prefers
// handing the write off to the background sendqueue drainer instead of
// draining it inline on the handler goroutine, per spec.md §4.J ("a
// large response must be flushed piecewise").
const sendQueueThreshold = 32 * 1024

// dispatch hands one fully parsed request to the shared worker pool.
// The job captures seq and re-checks it against the connection's live
// Sequence before touching anything, so a slow handler racing a closed
// and recycled slot becomes a safe no-op instead of writing into
// somebody else's socket. A request timer is armed before submission so
// a handler that never returns still gets torn down (see onTimeout's
// KindRequest branch) instead of holding its slot forever.
func (w *Worker) dispatch(c *conn.Connection, seq uint64, req *http.Request) {
	w.armRequest(c)

	submitted := w.jobs.Submit(func() {
		if c.Sequence != seq {
			http.ReleaseRequest(req)
			return
		}

		resp := http.AcquireResponse()
		ctx := http.AcquireContext(req, resp, c, w.files)

		w.rtr.Dispatch(ctx)

		if c.Sequence == seq {
			c.KeepAlive = !req.WantsClose()
			middleware.CompressResponse(resp, req.Header("Accept-Encoding"), w.gzipMinBytes)
			out := resp.WriteTo(nil, req.Version, c.KeepAlive)
			c.State = conn.StateWriting
			w.writeResponse(c, seq, out)
		}

		http.ReleaseContext(ctx)
		http.ReleaseResponse(resp)
		http.ReleaseRequest(req)
	})

	if !submitted {
		w.cancelTimer(c)
		w.writeRaw(c, []byte("HTTP/1.1 503 Service Unavailable\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
		w.closeConnection(c)
	}
}

// writeResponse flushes a fully rendered response, piecewise through the
// background sendqueue drainer for large bodies (and when the guard
// isn't already backpressured) or inline otherwise, then performs the
// post-write keep-alive bookkeeping once the buffer is actually drained.
// Per spec.md §4.J this is strictly additive to the inline write path:
// the sendqueue is a drain-path choice, not a different response shape.
func (w *Worker) writeResponse(c *conn.Connection, seq uint64, out []byte) {
	if len(out) < sendQueueThreshold || c.Guard.SendQueueOverflowed() {
		w.stageAndWrite(c, out)
		if c.Sequence == seq {
			w.checkKeepAlive(c, seq)
		}
		return
	}

	c.Guard.IncrementSendCount()
	queued := w.sendQ.TrySubmit(sendqueue.Job{
		Sequence: seq,
		Payload:  out,
		Write: func(s uint64, p []byte) bool {
			defer c.Guard.DecrementSendCount()
			if c.Sequence != s {
				return false
			}
			w.stageAndWrite(c, p)
			if c.Sequence == s {
				w.checkKeepAlive(c, s)
			}
			return true
		},
	})
	if !queued {
		c.Guard.DecrementSendCount()
		w.stageAndWrite(c, out)
		if c.Sequence == seq {
			w.checkKeepAlive(c, seq)
		}
	}
}

// handleWrite drains as much of the connection's pending output as a
// non-blocking write will take, toggling write readiness interest on or
// off depending on whether anything is left. Guarded by WriteMu since a
// background sendqueue job (see writeResponse) may be draining the same
// buffer concurrently.
func (w *Worker) handleWrite(c *conn.Connection) {
	c.WriteMu.Lock()
	defer c.WriteMu.Unlock()

	for c.WriteBuf.Len() > 0 {
		n, err := unix.Write(c.FD, c.WriteBuf.Peek())
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				w.poll.Modify(c.FD, poller.Readable|poller.Writable)
				return
			}
			if err == unix.EINTR {
				continue
			}
			w.closeConnection(c)
			return
		}
		if n == 0 {
			break
		}
		c.WriteBuf.Consume(n)
	}

	w.poll.Modify(c.FD, poller.Readable)
}

// stageAndWrite appends p to c's write buffer under WriteMu and drains
// what it can immediately.
func (w *Worker) stageAndWrite(c *conn.Connection, p []byte) {
	c.WriteMu.Lock()
	c.WriteBuf.Append(p)
	c.WriteMu.Unlock()
	w.handleWrite(c)
}

// writeRaw is a best-effort synchronous write for terminal error
// responses where there is no point staging bytes for a connection
// about to be closed.
func (w *Worker) writeRaw(c *conn.Connection, p []byte) {
	for len(p) > 0 {
		n, err := unix.Write(c.FD, p)
		if err != nil {
			return
		}
		p = p[n:]
	}
}

// checkKeepAlive re-arms the keep-alive timer on a persistent connection
// or closes a non-persistent one after its response has gone out.
func (w *Worker) checkKeepAlive(c *conn.Connection, seq uint64) {
	if !c.KeepAlive {
		w.closeConnection(c)
		return
	}
	c.State = conn.StateReading
	w.armKeepAlive(c)
}

// closeConnection removes the fd from the poller and closes it
// immediately, then hands the slot to the reclaimer instead of
// releasing it back to the pool right away — a worker-pool job racing
// this close (see dispatch's sequence re-check) must still find a valid
// fd number until the grace window lapses, even though it will no-op on
// the sequence mismatch.
func (w *Worker) closeConnection(c *conn.Connection) {
	if c.State == conn.StateClosing {
		return
	}
	c.State = conn.StateClosing

	w.poll.Remove(c.FD)
	unix.Close(c.FD)
	w.pool.Forget(c.FD)

	if c.Request != nil {
		http.ReleaseRequest(c.Request)
		c.Request = nil
	}

	w.cancelTimer(c)
	c.BumpSequence()
	w.rcl.Enqueue(c, c.Sequence)
}

// onReclaim is the reclaimer's release callback: return the slot to the
// pool once its grace window has elapsed.
func (w *Worker) onReclaim(payload any, sequence uint64) {
	c := payload.(*conn.Connection)
	if c.Sequence != sequence {
		return
	}
	w.pool.Release(c)
}

// onExpire decides whether a fired timer entry represents a genuine
// timeout or should be rearmed; only KindKeepAlive entries are
// rearm-eligible (see armKeepAlive), and only while the connection is
// still idle between requests.
func (w *Worker) onExpire(e *timer.Entry) bool {
	c, ok := e.Payload.(*conn.Connection)
	if !ok || c.Sequence != e.Sequence {
		return false
	}
	return e.Kind == timer.KindKeepAlive && c.State == conn.StateReading
}

// onTimeout tears down a connection whose idle, keep-alive, or
// in-flight-request deadline genuinely expired. A KindRequest expiry
// additionally overwrites whatever response the stuck handler might
// still produce with a 408 by writing it onto the wire and closing the
// connection out from under the handler; BumpSequence (inside
// closeConnection) then makes the handler's own eventual write a no-op
// per its sequence re-check.
func (w *Worker) onTimeout(e *timer.Entry) {
	c, ok := e.Payload.(*conn.Connection)
	if !ok || c.Sequence != e.Sequence {
		return
	}
	if e.Kind == timer.KindRequest {
		w.writeRaw(c, []byte("HTTP/1.1 408 Request Timeout\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
	}
	w.closeConnection(c)
}

func (w *Worker) armIdle(c *conn.Connection) {
	c.TimerHandle = w.wheel.Add(time.Now().Add(timer.DefaultIdleTimeout), timer.KindIdle, c.Sequence, c, 0)
}

func (w *Worker) armKeepAlive(c *conn.Connection) {
	w.cancelTimer(c)
	c.TimerHandle = w.wheel.Add(time.Now().Add(timer.DefaultKeepAliveTimeout), timer.KindKeepAlive, c.Sequence, c, timer.DefaultKeepAliveTimeout)
}

// armRequest arms a KindRequest deadline for the request c just started
// processing, canceling whatever idle/keep-alive entry was still armed
// from before the request arrived.
func (w *Worker) armRequest(c *conn.Connection) {
	w.cancelTimer(c)
	c.TimerHandle = w.wheel.Add(time.Now().Add(timer.DefaultRequestTimeout), timer.KindRequest, c.Sequence, c, 0)
}

// cancelTimer cancels c's currently armed timer entry, if any.
func (w *Worker) cancelTimer(c *conn.Connection) {
	if h, ok := c.TimerHandle.(*timer.Entry); ok {
		w.wheel.Cancel(h)
	}
}

// listenReusePort opens a non-blocking TCP listener with SO_REUSEPORT
// set, so every worker goroutine in the fleet can bind the same address
// and let the kernel load-balance accepts across them instead of one
// worker owning the single shared listener engine.go used.
func listenReusePort(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	var sa unix.SockaddrInet4
	if tcpAddr.IP != nil {
		copy(sa.Addr[:], tcpAddr.IP.To4())
	}
	sa.Port = tcpAddr.Port

	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// sockaddrToAddr converts a raw accept() sockaddr into a net.Addr purely
// for Connection.Remote's benefit (logging/observability); it is never
// parsed back out of the wire format.
func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
