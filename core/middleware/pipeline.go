// Package middleware provides the common router.Middleware
// implementations a handler chain reaches for: recovery, logging,
// CORS, rate limiting, request IDs, and response compression.
package middleware

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/flowgate/httpd/core/http"
	"github.com/flowgate/httpd/core/router"
)

// Recovery recovers from a panicking downstream middleware and turns it
// into a 500 JSON response instead of crashing the worker goroutine.
// core/router.Dispatch already recovers handler panics; this exists so
// a middleware itself (run before Dispatch's own recover is in scope)
// gets the same protection.
func Recovery() router.Middleware {
	return func(ctx *http.Context) bool {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("middleware panic recovered: %v", err)
				ctx.AbortWithError(500, errFromPanic(err))
			}
		}()
		return true
	}
}

func errFromPanic(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}

// Logger logs method, path, and status after the handler chain
// completes. It must be registered first so its deferred log line fires
// after everything downstream has run and set a final status.
func Logger() router.Middleware {
	return func(ctx *http.Context) bool {
		start := time.Now()
		method := ctx.Request.Method
		path := ctx.Request.Path
		defer func() {
			log.Printf("%s %s -> %d (%s)", method, path, ctx.Response.StatusCode, time.Since(start))
		}()
		return true
	}
}

// CORS adds permissive CORS headers and short-circuits preflight
// OPTIONS requests with a 204.
func CORS() router.Middleware {
	return func(ctx *http.Context) bool {
		ctx.SetHeader("Access-Control-Allow-Origin", "*")
		ctx.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		ctx.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if ctx.Request.Method == "OPTIONS" {
			ctx.Status(204)
			ctx.Abort()
			return false
		}
		return true
	}
}

// RateLimiter is a simple per-process token-bucket middleware, refilling
// to requestsPerSecond once a second.
func RateLimiter(requestsPerSecond int) router.Middleware {
	var (
		mu         sync.Mutex
		tokens     = requestsPerSecond
		lastRefill = time.Now()
	)

	return func(ctx *http.Context) bool {
		mu.Lock()
		now := time.Now()
		if now.Sub(lastRefill) > time.Second {
			tokens = requestsPerSecond
			lastRefill = now
		}
		if tokens > 0 {
			tokens--
			mu.Unlock()
			return true
		}
		mu.Unlock()

		ctx.Error(429, "Too Many Requests")
		ctx.Abort()
		return false
	}
}

// RequestID stamps every request with a random UUID, echoed back as
// X-Request-ID and stored as a request attribute for downstream
// handlers/logging to pick up.
func RequestID() router.Middleware {
	return func(ctx *http.Context) bool {
		id := uuid.New().String()
		ctx.SetHeader("X-Request-ID", id)
		ctx.SetAttribute("request_id", id)
		return true
	}
}

// gzipPool reuses gzip.Writer instances across requests, matching the
// pooling style the rest of this codebase's hot path uses.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Gzip records minBytes (1024 when minBytes <= 0) on the request as the
// "gzip_min_bytes" attribute and always proceeds. It does not compress
// anything itself: router.Middleware runs before the handler, and the
// compression step is CompressResponse, which the event loop calls after
// dispatch with its own configured minimum. Nothing in this module reads
// the attribute.
func Gzip(minBytes int) router.Middleware {
	if minBytes <= 0 {
		minBytes = 1024
	}
	return func(ctx *http.Context) bool {
		ctx.SetAttribute("gzip_min_bytes", minBytes)
		return true
	}
}

// CompressResponse applies gzip to resp.Body in place if acceptEncoding
// advertises gzip support and the body is at least minBytes. Called
// explicitly after Dispatch (not as a proceed/stop middleware, since
// compression needs the handler's finished output) by the event loop's
// write path before WriteTo renders the wire bytes.
func CompressResponse(resp *http.Response, acceptEncoding string, minBytes int) {
	if len(resp.Body) < minBytes || !bytes.Contains([]byte(acceptEncoding), []byte("gzip")) {
		return
	}

	var buf bytes.Buffer
	zw := gzipPool.Get().(*gzip.Writer)
	zw.Reset(&buf)
	if _, err := zw.Write(resp.Body); err != nil {
		zw.Close()
		gzipPool.Put(zw)
		return
	}
	if err := zw.Close(); err != nil {
		gzipPool.Put(zw)
		return
	}
	gzipPool.Put(zw)

	resp.Body = append(resp.Body[:0], buf.Bytes()...)
	resp.Headers["Content-Encoding"] = "gzip"
	delete(resp.Headers, "Content-Length")
}
