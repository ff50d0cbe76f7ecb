/*
Package httpd is an event-loop based HTTP/1.1 server: one SO_REUSEPORT
listener per worker goroutine, each driving its own epoll/kqueue
readiness loop over a fixed-capacity connection pool, with a shared
worker pool for request dispatch and a timer wheel for idle/keep-alive/
request deadlines.

Design

Each core/loop.Worker binds its own raw socket with SO_REUSEPORT set,
so the kernel load-balances inbound connections across workers without
a shared accept mutex. A connection's lifecycle (WAITING, READING,
PROCESSING, WRITING, CLOSING) is tracked in core/conn.Connection, whose
pool slot is reused only after core/reclaim.Reclaimer's grace window
expires — every reference into a slot carries the slot's Sequence so a
stale async callback can detect its connection was already recycled
and no-op instead of corrupting an unrelated peer's state.

Requests are parsed incrementally by core/http.Parser directly out of
the connection's read buffer (core/buffer), handling both
Content-Length and chunked bodies and pipelined requests on the same
connection. Parsed requests are handed to a shared core/pools.WorkerPool
for route dispatch through core/router.Router, which matches routes in
registration order against ordered, regex-backed :param segments and
runs a middleware chain (core/middleware) ahead of the handler.

Quick Start

	package main

	import (
	    "log"

	    "github.com/flowgate/httpd/app"
	    "github.com/flowgate/httpd/config"
	    "github.com/flowgate/httpd/core/http"
	    "github.com/flowgate/httpd/core/middleware"
	)

	func main() {
	    cfg := config.New()
	    supervisor := app.New(cfg)

	    r := supervisor.Router()
	    r.Use(middleware.RequestID(), middleware.Recovery(), middleware.Logger())

	    r.GET("/hello", func(ctx *http.Context) {
	        ctx.String(200, "Hello, World!")
	    })

	    log.Fatal(supervisor.Run())
	}

Modules

  - app: worker fleet supervision, startup and graceful shutdown
  - config: flag-based bootstrap configuration plus fsnotify hot-reload
  - core/loop: the per-worker accept/read/write event loop
  - core/conn: connection state machine and fixed-capacity pool
  - core/http: request parsing, response rendering, pooled request context
  - core/router: ordered-route-table dispatch and middleware chaining
  - core/middleware: recovery, logging, CORS, rate limiting, request IDs, gzip
  - core/pools: worker pool and object pools (buffers, byte slices)
  - core/poller: epoll/kqueue readiness multiplexing
  - core/timer: sweep-based timer wheel for idle/keep-alive/request deadlines
  - core/reclaim: deferred connection-slot reclamation
  - core/security: per-connection flood detection and send-queue backpressure
  - core/sendqueue: semaphore-bounded outbound write workers
  - core/sendfile: zero-copy static file serving
  - core/observability: Prometheus-backed runtime metrics
*/
package httpd
