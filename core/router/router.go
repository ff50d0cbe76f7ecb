// Package router implements the spec's ordered-route-table dispatcher:
// routes are matched in registration order (first match wins, not by
// tree or hash), with global and per-route middleware chains.
package router

import (
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/flowgate/httpd/core/http"
)

// HandlerFunc handles a fully matched request.
type HandlerFunc func(ctx *http.Context)

// Middleware runs before a handler and decides whether to proceed.
// Returning false (or calling ctx.Abort()) short-circuits the chain —
// the middleware is expected to have already written a response.
type Middleware func(ctx *http.Context) bool

var paramPattern = regexp.MustCompile(`:([^/]+)`)

type route struct {
	method      string
	path        string
	pattern     *regexp.Regexp
	paramNames  []string
	handler     HandlerFunc
	middlewares []Middleware
}

// Router is an ordered list of routes, matched linearly so the first
// route registered that matches method+path wins, mirroring the original
// implementation rather than a radix/hash lookup.
type Router struct {
	mu     sync.RWMutex
	routes []route
	global []Middleware
}

// New returns an empty Router.
func New() *Router {
	return &Router{}
}

// Use registers global middleware run before every route's own chain,
// in registration order.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	r.global = append(r.global, mw...)
	r.mu.Unlock()
}

// Add registers a route. method is upper-cased; path segments prefixed
// with ':' become named parameters captured into the Context at
// dispatch time (e.g. "/users/:id" matches "/users/42" with param
// id=42).
func (r *Router) Add(method, path string, handler HandlerFunc, mw ...Middleware) {
	method = strings.ToUpper(method)

	var paramNames []string
	pattern := paramPattern.ReplaceAllStringFunc(path, func(m string) string {
		paramNames = append(paramNames, m[1:])
		return "([^/]+)"
	})
	compiled := regexp.MustCompile("^" + pattern + "$")

	r.mu.Lock()
	r.routes = append(r.routes, route{
		method:      method,
		path:        path,
		pattern:     compiled,
		paramNames:  paramNames,
		handler:     handler,
		middlewares: mw,
	})
	r.mu.Unlock()

	log.Printf("route registered: %s %s", method, path)
}

func (r *Router) GET(path string, h HandlerFunc, mw ...Middleware)     { r.Add("GET", path, h, mw...) }
func (r *Router) POST(path string, h HandlerFunc, mw ...Middleware)    { r.Add("POST", path, h, mw...) }
func (r *Router) PUT(path string, h HandlerFunc, mw ...Middleware)     { r.Add("PUT", path, h, mw...) }
func (r *Router) DELETE(path string, h HandlerFunc, mw ...Middleware)  { r.Add("DELETE", path, h, mw...) }
func (r *Router) HEAD(path string, h HandlerFunc, mw ...Middleware)    { r.Add("HEAD", path, h, mw...) }
func (r *Router) OPTIONS(path string, h HandlerFunc, mw ...Middleware) { r.Add("OPTIONS", path, h, mw...) }

// Group returns a RouteGroup that prefixes every route registered
// through it and applies its own middleware ahead of each route's own.
func (r *Router) Group(prefix string) *RouteGroup {
	return &RouteGroup{router: r, prefix: prefix}
}

// RouteGroup batches a path prefix and a shared middleware chain across
// several route registrations, mirroring the original's Router::group.
type RouteGroup struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

// Use adds middleware that runs before every route registered on this
// group, after the router's global middleware and before the route's
// own.
func (g *RouteGroup) Use(mw ...Middleware) {
	g.middlewares = append(g.middlewares, mw...)
}

func (g *RouteGroup) fullPath(path string) string {
	if path == "" || path[0] != '/' {
		return g.prefix + "/" + path
	}
	return g.prefix + path
}

// Add registers a route under the group's prefix with the group's
// middleware applied ahead of the route's own.
func (g *RouteGroup) Add(method, path string, handler HandlerFunc, mw ...Middleware) {
	combined := make([]Middleware, 0, len(g.middlewares)+len(mw))
	combined = append(combined, g.middlewares...)
	combined = append(combined, mw...)
	g.router.Add(method, g.fullPath(path), handler, combined...)
}

func (g *RouteGroup) GET(path string, h HandlerFunc, mw ...Middleware) {
	g.Add("GET", path, h, mw...)
}
func (g *RouteGroup) POST(path string, h HandlerFunc, mw ...Middleware) {
	g.Add("POST", path, h, mw...)
}
func (g *RouteGroup) PUT(path string, h HandlerFunc, mw ...Middleware) {
	g.Add("PUT", path, h, mw...)
}
func (g *RouteGroup) DELETE(path string, h HandlerFunc, mw ...Middleware) {
	g.Add("DELETE", path, h, mw...)
}
func (g *RouteGroup) HEAD(path string, h HandlerFunc, mw ...Middleware) {
	g.Add("HEAD", path, h, mw...)
}
func (g *RouteGroup) OPTIONS(path string, h HandlerFunc, mw ...Middleware) {
	g.Add("OPTIONS", path, h, mw...)
}

// Group returns a nested group combining this group's prefix/middleware
// with the new one's.
func (g *RouteGroup) Group(prefix string) *RouteGroup {
	ng := &RouteGroup{router: g.router, prefix: g.prefix + prefix}
	ng.middlewares = append(ng.middlewares, g.middlewares...)
	return ng
}

// RouteCount returns the number of routes currently registered.
func (r *Router) RouteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Dispatch finds the first route matching ctx.Request's method and path
// in registration order, runs global then route middleware, then the
// handler. A middleware returning false, or any handler/middleware
// panic, short-circuits with the appropriate response already written.
// No match writes a 404 JSON body; an unhandled panic writes 500.
func (r *Router) Dispatch(ctx *http.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("handler panic: %v", rec)
			ctx.Error(500, "Internal Server Error")
		}
	}()

	r.mu.RLock()
	routes := r.routes
	global := r.global
	r.mu.RUnlock()

	method := strings.ToUpper(ctx.Request.Method)
	path := ctx.Request.Path

	for _, rt := range routes {
		if rt.method != method {
			continue
		}
		matches := rt.pattern.FindStringSubmatch(path)
		if matches == nil {
			continue
		}
		for i, name := range rt.paramNames {
			ctx.SetParam(name, matches[i+1])
		}

		if !runChain(global, ctx) {
			return
		}
		if !runChain(rt.middlewares, ctx) {
			return
		}
		rt.handler(ctx)
		return
	}

	ctx.Error(404, "Route not found")
}

func runChain(mws []Middleware, ctx *http.Context) bool {
	for _, mw := range mws {
		if !mw(ctx) || ctx.IsAborted() {
			return false
		}
	}
	return true
}
