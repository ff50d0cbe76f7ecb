package http

import (
	"strings"
	"testing"
)

func TestResponseWriteToIncludesContentLength(t *testing.T) {
	resp := AcquireResponse()
	resp.StatusCode = 200
	resp.Body = append(resp.Body, "hi"...)

	out := resp.WriteTo(nil, "HTTP/1.1", true)
	s := string(out)

	if !strings.HasPrefix(s, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line wrong: %q", s)
	}
	if !strings.Contains(s, "Content-Length: 2\r\n") {
		t.Fatalf("missing content-length: %q", s)
	}
	if !strings.Contains(s, "Connection: keep-alive\r\n") {
		t.Fatalf("missing connection header: %q", s)
	}
	if !strings.HasSuffix(s, "\r\n\r\nhi") {
		t.Fatalf("missing body: %q", s)
	}
}

func TestResponseWriteToClosesWhenNotKeepAlive(t *testing.T) {
	resp := AcquireResponse()
	resp.StatusCode = 404

	out := resp.WriteTo(nil, "HTTP/1.1", false)
	s := string(out)
	if !strings.Contains(s, "Connection: close\r\n") {
		t.Fatalf("missing close header: %q", s)
	}
	if !strings.Contains(s, "404 Not Found") {
		t.Fatalf("missing status text: %q", s)
	}
}
