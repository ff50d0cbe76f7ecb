package http

import (
	"errors"
	"os"
	"sync"

	gojson "github.com/goccy/go-json"
)

// ResponseWriter is the minimal surface a transport must provide so a
// Context can stage outgoing bytes without knowing how they eventually
// reach the wire. core/conn.Connection implements this by appending into
// the connection's owned write Buffer rather than issuing a syscall
// directly, so writes are subject to the same backpressure and timer
// bookkeeping as the rest of the connection's output.
type ResponseWriter interface {
	Write(p []byte)

	// Flush synchronously drains whatever has been staged so far to the
	// wire, blocking until done. Only meant for the rare path (serving
	// a static file via zero-copy sendfile) that must guarantee the
	// response headers have actually reached the socket before bytes
	// are streamed into the same fd out of band.
	Flush() error

	// RawFD exposes the underlying socket fd for syscall-level zero-copy
	// transfers. Ordinary handlers should never need this — it exists
	// solely for core/sendfile's benefit.
	RawFD() int
}

// FileServer is implemented by core/sendfile so Context.ServeFile can
// stream a static file's bytes without this package importing the
// sendfile package directly (which would otherwise need to import
// http for the Context type, creating a cycle).
type FileServer interface {
	ServeFile(w ResponseWriter, path string) (status int, headers map[string]string, err error)
}

// ErrAborted is stored on a Context once Abort is called, letting router
// middleware chains detect a short-circuit.
var ErrAborted = errors.New("http: request aborted")

// Context is the per-request handler-facing API: request data, response
// building, and the param/attribute bags a router and its middleware
// populate.
type Context struct {
	Request  *Request
	Response *Response
	writer   ResponseWriter

	// params holds path parameters captured by the router. Small fixed
	// array covers the overwhelming majority of routes without an
	// allocation; paramOverflow covers routes with more segments than
	// that.
	paramKeys    [8]string
	paramVals    [8]string
	paramCount   int
	paramOverflow map[string]string

	aborted bool
	err     error

	files FileServer
}

var contextPool = sync.Pool{
	New: func() any {
		return &Context{}
	},
}

// AcquireContext returns a pooled Context bound to req/resp/writer.
func AcquireContext(req *Request, resp *Response, w ResponseWriter, files FileServer) *Context {
	c := contextPool.Get().(*Context)
	c.Request = req
	c.Response = resp
	c.writer = w
	c.files = files
	return c
}

// ReleaseContext resets and returns a Context to the pool. The caller is
// responsible for releasing Request/Response separately since those have
// their own pools and lifetimes (a response may outlive its context
// across a send-queue handoff).
func ReleaseContext(c *Context) {
	c.Reset()
	contextPool.Put(c)
}

// Reset clears per-request state so the Context can be reused.
func (c *Context) Reset() {
	c.Request = nil
	c.Response = nil
	c.writer = nil
	c.files = nil
	c.paramCount = 0
	for i := range c.paramKeys {
		c.paramKeys[i] = ""
		c.paramVals[i] = ""
	}
	for k := range c.paramOverflow {
		delete(c.paramOverflow, k)
	}
	c.aborted = false
	c.err = nil
}

// SetParam records a path parameter captured by the router.
func (c *Context) SetParam(key, value string) {
	if c.paramCount < len(c.paramKeys) {
		c.paramKeys[c.paramCount] = key
		c.paramVals[c.paramCount] = value
		c.paramCount++
		return
	}
	if c.paramOverflow == nil {
		c.paramOverflow = make(map[string]string)
	}
	c.paramOverflow[key] = value
}

// Param returns a path parameter by name, or "" if absent.
func (c *Context) Param(key string) string {
	for i := 0; i < c.paramCount; i++ {
		if c.paramKeys[i] == key {
			return c.paramVals[i]
		}
	}
	if c.paramOverflow != nil {
		return c.paramOverflow[key]
	}
	return ""
}

// Query returns a query-string parameter by name.
func (c *Context) Query(key string) string { return c.Request.Query(key) }

// Header returns a request header by case-insensitive name.
func (c *Context) Header(key string) string { return c.Request.Header(key) }

// SetHeader sets a response header.
func (c *Context) SetHeader(key, value string) { c.Response.Headers[key] = value }

// Body returns the raw request body.
func (c *Context) Body() []byte { return c.Request.Body }

// Bind decodes the request body as JSON into dst.
func (c *Context) Bind(dst any) error {
	return gojson.Unmarshal(c.Request.Body, dst)
}

// Attribute/SetAttribute proxy to the underlying Request's attribute bag,
// the channel middleware uses to pass data (e.g. an authenticated
// principal) down the handler chain.
func (c *Context) Attribute(key string) (any, bool) { return c.Request.Attribute(key) }
func (c *Context) SetAttribute(key string, v any)   { c.Request.SetAttribute(key, v) }

// Status sets the response status code and returns the Context for
// chaining (String/JSON/etc. typically follow it directly).
func (c *Context) Status(code int) *Context {
	c.Response.StatusCode = code
	return c
}

// String writes a text/plain response body.
func (c *Context) String(code int, body string) {
	c.Response.StatusCode = code
	c.Response.Headers["Content-Type"] = "text/plain; charset=utf-8"
	c.Response.Body = append(c.Response.Body[:0], body...)
}

// Bytes writes a raw response body with an explicit content type.
func (c *Context) Bytes(code int, contentType string, body []byte) {
	c.Response.StatusCode = code
	c.Response.Headers["Content-Type"] = contentType
	c.Response.Body = append(c.Response.Body[:0], body...)
}

// JSON encodes v and writes it as an application/json response.
func (c *Context) JSON(code int, v any) error {
	b, err := gojson.Marshal(v)
	if err != nil {
		return err
	}
	c.Response.StatusCode = code
	c.Response.Headers["Content-Type"] = "application/json"
	c.Response.Body = append(c.Response.Body[:0], b...)
	return nil
}

// Success is a convenience wrapper emitting {"data": v} with status 200.
func (c *Context) Success(v any) error {
	return c.JSON(200, map[string]any{"data": v})
}

// Error emits the standard {"success":false,"code":<code>,"message":<message>,"data":null}
// envelope with the given status.
func (c *Context) Error(code int, message string) {
	_ = c.JSON(code, map[string]any{
		"success": false,
		"code":    code,
		"message": message,
		"data":    nil,
	})
}

// Data writes raw bytes through the underlying ResponseWriter immediately,
// bypassing Response body buffering; used for streamed/chunked handler
// output where the full body isn't known up front.
func (c *Context) Data(p []byte) {
	c.writer.Write(p)
}

// ServeFile streams a static file directly to the connection via the
// bound FileServer (core/sendfile), bypassing the Response body buffer
// entirely. The Response's status/headers are updated for logging
// middleware's benefit, but its body is left empty since the bytes
// already reached the socket.
func (c *Context) ServeFile(path string) error {
	if c.files == nil {
		return os.ErrInvalid
	}
	status, headers, err := c.files.ServeFile(c.writer, path)
	if err != nil {
		return err
	}
	if status >= 400 {
		c.Error(status, statusText(status))
		return nil
	}
	c.Response.StatusCode = status
	for k, v := range headers {
		c.Response.Headers[k] = v
	}
	c.Response.MarkSent()
	return nil
}

// Abort marks the request as short-circuited; router middleware chains
// check IsAborted after each step and stop dispatching further handlers
// when it returns true.
func (c *Context) Abort() {
	c.aborted = true
	c.err = ErrAborted
}

// AbortWithError aborts the chain and records err for logging.
func (c *Context) AbortWithError(code int, err error) {
	c.aborted = true
	c.err = err
	c.Error(code, err.Error())
}

// IsAborted reports whether a prior middleware called Abort.
func (c *Context) IsAborted() bool { return c.aborted }
