package observability

import (
	"time"

	"github.com/flowgate/httpd/core/http"
	"github.com/flowgate/httpd/core/router"
)

// Middleware returns a router.Middleware that records every dispatched
// request's method, path, status, and latency into r. Register it
// first (ahead of core/middleware.Logger) so its deferred recording
// covers the full handler chain, including whatever a later middleware
// aborts with.
func (r *Registry) Middleware() router.Middleware {
	return func(ctx *http.Context) bool {
		start := time.Now()
		method := ctx.Request.Method
		path := ctx.Request.Path
		defer func() {
			r.RecordRequest(method, path, ctx.Response.StatusCode, time.Since(start))
		}()
		return true
	}
}
