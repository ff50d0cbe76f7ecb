package router

import (
	"testing"

	"github.com/flowgate/httpd/core/http"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) {}

func (nopWriter) Flush() error { return nil }

func (nopWriter) RawFD() int { return -1 }

func newCtx(method, path string) *http.Context {
	req := &http.Request{
		Method:      method,
		Path:        path,
		Version:     "HTTP/1.1",
		Headers:     map[string]string{"host": "x"},
		QueryParams: map[string]string{},
	}
	resp := http.AcquireResponse()
	return http.AcquireContext(req, resp, nopWriter{}, nil)
}

func TestDispatchFirstMatchWinsOnDuplicatePaths(t *testing.T) {
	r := New()
	r.GET("/items/:id", func(ctx *http.Context) { ctx.String(200, "first") })
	r.GET("/items/:id", func(ctx *http.Context) { ctx.String(200, "second") })

	ctx := newCtx("GET", "/items/7")
	r.Dispatch(ctx)

	if string(ctx.Response.Body) != "first" {
		t.Fatalf("body = %q, want first", ctx.Response.Body)
	}
	if ctx.Param("id") != "7" {
		t.Fatalf("param id = %q, want 7", ctx.Param("id"))
	}
}

func TestDispatch404WhenNoRouteMatches(t *testing.T) {
	r := New()
	r.GET("/known", func(ctx *http.Context) {})

	ctx := newCtx("GET", "/unknown")
	r.Dispatch(ctx)

	if ctx.Response.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", ctx.Response.StatusCode)
	}
	want := `{"code":404,"data":null,"message":"Route not found","success":false}`
	if string(ctx.Response.Body) != want {
		t.Fatalf("body = %s, want %s", ctx.Response.Body, want)
	}
}

func TestMiddlewareShortCircuitsChain(t *testing.T) {
	r := New()
	handlerCalled := false
	r.Use(func(ctx *http.Context) bool {
		ctx.Error(401, "nope")
		return false
	})
	r.GET("/secure", func(ctx *http.Context) { handlerCalled = true })

	ctx := newCtx("GET", "/secure")
	r.Dispatch(ctx)

	if handlerCalled {
		t.Fatalf("handler ran despite middleware returning false")
	}
	if ctx.Response.StatusCode != 401 {
		t.Fatalf("status = %d, want 401", ctx.Response.StatusCode)
	}
}

func TestGroupPrefixAndMiddlewareApply(t *testing.T) {
	r := New()
	var order []string
	g := r.Group("/api")
	g.Use(func(ctx *http.Context) bool {
		order = append(order, "group-mw")
		return true
	})
	g.GET("/ping", func(ctx *http.Context) {
		order = append(order, "handler")
		ctx.String(200, "pong")
	})

	ctx := newCtx("GET", "/api/ping")
	r.Dispatch(ctx)

	if string(ctx.Response.Body) != "pong" {
		t.Fatalf("body = %q, want pong", ctx.Response.Body)
	}
	if len(order) != 2 || order[0] != "group-mw" || order[1] != "handler" {
		t.Fatalf("order = %v, want [group-mw handler]", order)
	}
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	r := New()
	r.GET("/boom", func(ctx *http.Context) { panic("kaboom") })

	ctx := newCtx("GET", "/boom")
	r.Dispatch(ctx)

	if ctx.Response.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", ctx.Response.StatusCode)
	}
}
