package http

import "testing"

func newTestRequest() *Request {
	return &Request{
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func TestParseSimpleGET(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "GET /hello?name=world HTTP/1.1\r\nHost: example.com\r\n\r\n"

	n, status := p.Parse([]byte(raw), req)
	if status != Complete {
		t.Fatalf("status = %v, want Complete", status)
	}
	if n != len(raw) {
		t.Fatalf("consumed = %d, want %d", n, len(raw))
	}
	if req.Method != "GET" || req.Path != "/hello" {
		t.Fatalf("method/path = %q/%q", req.Method, req.Path)
	}
	if req.QueryParams["name"] != "world" {
		t.Fatalf("query[name] = %q, want world", req.QueryParams["name"])
	}
}

func TestParseNeedsMoreOnPartialHeaders(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "GET / HTTP/1.1\r\nHost: example"

	_, status := p.Parse([]byte(raw), req)
	if status != NeedMore {
		t.Fatalf("status = %v, want NeedMore", status)
	}
}

func TestParseNeedsMoreOnPartialBody(t *testing.T) {
	var p Parser
	req := newTestRequest()
	head := "POST /items HTTP/1.1\r\nHost: x\r\nContent-Length: 10\r\n\r\n"
	partial := head + "{\"a\":\"b\""

	_, status := p.Parse([]byte(partial), req)
	if status != NeedMore {
		t.Fatalf("status = %v, want NeedMore", status)
	}

	full := head + "{\"a\":\"b\"}X"
	n, status := p.Parse([]byte(full), req)
	if status != Complete {
		t.Fatalf("status = %v, want Complete", status)
	}
	if n != len(full) {
		t.Fatalf("consumed = %d, want %d", n, len(full))
	}
	if string(req.Body) != "{\"a\":\"b\"}X" {
		t.Fatalf("body = %q", req.Body)
	}
}

func TestParseRejectsMissingHostOnHTTP11(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "GET / HTTP/1.1\r\n\r\n"

	_, status := p.Parse([]byte(raw), req)
	if status != Error {
		t.Fatalf("status = %v, want Error", status)
	}
}

func TestParseRejectsContentLengthAndChunkedTogether(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\nTransfer-Encoding: chunked\r\n\r\nabcd"

	_, status := p.Parse([]byte(raw), req)
	if status != Error {
		t.Fatalf("status = %v, want Error", status)
	}
}

func TestParseRejectsUnknownMethod(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "TRACE / HTTP/1.1\r\nHost: x\r\n\r\n"

	_, status := p.Parse([]byte(raw), req)
	if status != Error {
		t.Fatalf("status = %v, want Error", status)
	}
}

func TestParseChunkedBody(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"

	n, status := p.Parse([]byte(raw), req)
	if status != Complete {
		t.Fatalf("status = %v, want Complete", status)
	}
	if n != len(raw) {
		t.Fatalf("consumed = %d, want %d", n, len(raw))
	}
	if string(req.Body) != "Wikipedia" {
		t.Fatalf("body = %q, want Wikipedia", req.Body)
	}
}

func TestParseHTTP10DefaultsToClose(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "GET / HTTP/1.0\r\n\r\n"

	_, status := p.Parse([]byte(raw), req)
	if status != Complete {
		t.Fatalf("status = %v, want Complete", status)
	}
	if !req.WantsClose() {
		t.Fatalf("WantsClose() = false, want true for bare HTTP/1.0")
	}
}

func TestParsePercentDecodesPath(t *testing.T) {
	var p Parser
	req := newTestRequest()
	raw := "GET /a%20b HTTP/1.1\r\nHost: x\r\n\r\n"

	_, status := p.Parse([]byte(raw), req)
	if status != Complete {
		t.Fatalf("status = %v, want Complete", status)
	}
	if req.Path != "/a b" {
		t.Fatalf("path = %q, want %q", req.Path, "/a b")
	}
}
