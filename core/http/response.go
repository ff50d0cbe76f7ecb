package http

import (
	"strconv"
	"sync"
)

// Response is a handler's outgoing reply. StatusCode defaults to 200;
// handlers set Headers/Body and the Context renders the wire format.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte

	sent bool
}

var responsePool = sync.Pool{
	New: func() any {
		return &Response{
			StatusCode: 200,
			Headers:    make(map[string]string, 4),
			Body:       make([]byte, 0, 512),
		}
	},
}

// AcquireResponse returns a pooled, reset Response.
func AcquireResponse() *Response {
	return responsePool.Get().(*Response)
}

// ReleaseResponse resets resp and returns it to the pool.
func ReleaseResponse(resp *Response) {
	resp.Reset()
	responsePool.Put(resp)
}

// Reset restores a Response to its default state.
func (resp *Response) Reset() {
	resp.StatusCode = 200
	resp.Body = resp.Body[:0]
	resp.sent = false
	for k := range resp.Headers {
		delete(resp.Headers, k)
	}
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown Status"
	}
}

// MarkSent records that the response body was already written directly
// to the connection (e.g. via a zero-copy sendfile path) and the normal
// render-and-buffer step in WriteTo should be skipped.
func (resp *Response) MarkSent() { resp.sent = true }

// AlreadySent reports whether MarkSent was called for this response.
func (resp *Response) AlreadySent() bool { return resp.sent }

// WriteTo appends the wire-format rendering of resp (status line, headers,
// CRLF, body) to dst and returns the grown slice. keepAlive controls the
// Connection header when the caller hasn't already set one explicitly.
// It returns dst unchanged if the response was already flushed directly
// (see MarkSent).
func (resp *Response) WriteTo(dst []byte, version string, keepAlive bool) []byte {
	if resp.sent {
		return dst
	}
	dst = append(dst, version...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(resp.StatusCode), 10)
	dst = append(dst, ' ')
	dst = append(dst, statusText(resp.StatusCode)...)
	dst = append(dst, "\r\n"...)

	_, hasCL := resp.Headers["Content-Length"]
	if !hasCL {
		dst = append(dst, "Content-Length: "...)
		dst = strconv.AppendInt(dst, int64(len(resp.Body)), 10)
		dst = append(dst, "\r\n"...)
	}

	_, hasConn := resp.Headers["Connection"]
	if !hasConn {
		if keepAlive {
			dst = append(dst, "Connection: keep-alive\r\n"...)
		} else {
			dst = append(dst, "Connection: close\r\n"...)
		}
	}

	for k, v := range resp.Headers {
		dst = append(dst, k...)
		dst = append(dst, ':', ' ')
		dst = append(dst, v...)
		dst = append(dst, "\r\n"...)
	}

	dst = append(dst, "\r\n"...)
	dst = append(dst, resp.Body...)
	return dst
}
