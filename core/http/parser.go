package http

import (
	"bytes"
	"strconv"

	"github.com/flowgate/httpd/core/pools"
)

// Status is the outcome of a single Parse call.
type Status int

const (
	// NeedMore means the buffer held an incomplete request; the caller
	// must retain the bytes and present them again, appended to, on the
	// next read.
	NeedMore Status = iota
	// Complete means req now holds a fully parsed request and Parse
	// consumed exactly the bytes that made it up.
	Complete
	// Error means the buffer contains a malformed request that can never
	// become valid; the connection must be closed.
	Error
)

// stage names the sections of a request. Parse keeps no stage between
// calls: every call re-parses from byte 0 of the presented data
// (requests are small and bounded, so re-scanning is cheap and avoids an
// incremental cursor-resumption state machine).
type stage int

const (
	stageRequestLine stage = iota
	stageHeaders
	stageBody
)

const (
	maxRequestLine = 8 * 1024
	maxHeaderBytes = 32 * 1024
	maxHeaderCount = 100
	maxBodyBytes   = 10 * 1024 * 1024
)

// Parser incrementally parses one HTTP request at a time out of a byte
// slice that may arrive across multiple reads. Callers call Parse with
// the full set of bytes accumulated so far; on NeedMore nothing is
// consumed and the caller appends more bytes and calls again. On
// Complete the parser reports how many leading bytes made up the
// request, so the caller can slide any trailing pipelined bytes to the
// front of its buffer.
type Parser struct {
	// chunkBody is only truncated by Reset; Parse does not use it. A
	// chunked body is decoded again from its first chunk on every call,
	// like the rest of the request.
	chunkBody []byte
}

// Reset truncates chunkBody. Parse holds no other per-request state, so
// the Parser is ready for the next request on the connection either way.
func (p *Parser) Reset() {
	p.chunkBody = p.chunkBody[:0]
}

// Parse attempts to parse a single request from data. It returns the
// number of bytes consumed (only meaningful when status is Complete) and
// the resulting status.
func (p *Parser) Parse(data []byte, req *Request) (consumed int, status Status) {
	lineEnd := bytes.Index(data, []byte("\r\n"))
	if lineEnd < 0 {
		if len(data) > maxRequestLine {
			return 0, Error
		}
		return 0, NeedMore
	}
	if lineEnd > maxRequestLine {
		return 0, Error
	}

	if !p.parseRequestLine(data[:lineEnd], req) {
		return 0, Error
	}

	headerStart := lineEnd + 2
	// The search starts at the request line's own CRLF so that a request
	// with no header lines ("GET / HTTP/1.0\r\n\r\n") is recognised too.
	termAt, hdrOK := findHeaderEnd(data[lineEnd:])
	if !hdrOK {
		if len(data)-headerStart > maxHeaderBytes {
			return 0, Error
		}
		return 0, NeedMore
	}
	termAt += lineEnd
	headerEnd := termAt
	if headerEnd < headerStart {
		headerEnd = headerStart // no header lines
	}

	if headerEnd-headerStart > maxHeaderBytes {
		return 0, Error
	}

	if !p.parseHeaders(data[headerStart:headerEnd], req) {
		return 0, Error
	}

	bodyStart := termAt + 4 // past the blank-line CRLFCRLF

	if req.Version == "HTTP/1.1" && req.Header("Host") == "" {
		return 0, Error
	}

	clStr, hasCL := req.Headers["content-length"]
	te, hasTE := req.Headers["transfer-encoding"]
	chunked := hasTE && te == "chunked"
	if hasCL && chunked {
		return 0, Error
	}

	if chunked {
		scratch := pools.GetBytes(2048)[:0] // lands in BytePool's 2048-byte tier
		body, n, st := decodeChunked(data[bodyStart:], scratch)
		switch st {
		case NeedMore:
			pools.PutBytes(scratch)
			return 0, NeedMore
		case Error:
			pools.PutBytes(scratch)
			return 0, Error
		}
		if len(body) > maxBodyBytes {
			pools.PutBytes(body)
			return 0, Error
		}
		req.Body = append(req.Body[:0], body...)
		pools.PutBytes(body)
		return bodyStart + n, Complete
	}

	if !hasCL {
		return bodyStart, Complete
	}

	contentLength, err := strconv.Atoi(clStr)
	if err != nil || contentLength < 0 {
		return 0, Error
	}
	if contentLength > maxBodyBytes {
		return 0, Error
	}
	if len(data)-bodyStart < contentLength {
		return 0, NeedMore
	}

	req.Body = append(req.Body[:0], data[bodyStart:bodyStart+contentLength]...)
	return bodyStart + contentLength, Complete
}

func (p *Parser) parseRequestLine(line []byte, req *Request) bool {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return false
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		return false
	}

	method := string(line[:sp1])
	if !isKnownMethod(method) {
		return false
	}

	uri := string(rest[:sp2])
	version := string(rest[sp2+1:])
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return false
	}
	if len(uri) == 0 || uri[0] != '/' {
		return false
	}

	req.Method = method
	req.RawURI = uri
	req.Version = version

	path := uri
	if q := bytes.IndexByte([]byte(uri), '?'); q >= 0 {
		path = uri[:q]
		parseQuery(uri[q+1:], req.QueryParams)
	}
	decoded, ok := percentDecode(path)
	if !ok {
		return false
	}
	req.Path = decoded
	return true
}

func (p *Parser) parseHeaders(block []byte, req *Request) bool {
	count := 0
	for len(block) > 0 {
		idx := bytes.Index(block, []byte("\r\n"))
		var line []byte
		if idx < 0 {
			line = block
			block = nil
		} else {
			line = block[:idx]
			block = block[idx+2:]
		}
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return false
		}
		name := lowerASCII(string(bytes.TrimSpace(line[:colon])))
		value := string(bytes.TrimSpace(line[colon+1:]))
		if name == "" {
			return false
		}
		req.Headers[name] = value
		count++
		if count > maxHeaderCount {
			return false
		}
	}
	return true
}

// findHeaderEnd locates the blank-line CRLFCRLF terminating the header
// block and returns the offset of its first byte relative to buf.
func findHeaderEnd(buf []byte) (int, bool) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

func parseQuery(raw string, into map[string]string) {
	for _, pair := range splitByte(raw, '&') {
		if pair == "" {
			continue
		}
		k, v, found := cutByte(pair, '=')
		dk, ok1 := percentDecode(k)
		if !ok1 {
			continue
		}
		if !found {
			into[dk] = ""
			continue
		}
		dv, ok2 := percentDecode(v)
		if !ok2 {
			continue
		}
		into[dk] = dv
	}
}

func splitByte(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func cutByte(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func percentDecode(s string) (string, bool) {
	if bytes.IndexByte([]byte(s), '%') < 0 && bytes.IndexByte([]byte(s), '+') < 0 {
		return s, true
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%':
			if i+2 >= len(s) {
				return "", false
			}
			hi, ok1 := hexVal(s[i+1])
			lo, ok2 := hexVal(s[i+2])
			if !ok1 || !ok2 {
				return "", false
			}
			out = append(out, hi<<4|lo)
			i += 2
		case '+':
			out = append(out, ' ')
		default:
			out = append(out, s[i])
		}
	}
	return string(out), true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// decodeChunked parses a chunked transfer-encoding body starting at the
// first chunk-size line. scratch is pooled append-scratch space (see
// core/pools.BytePool) reused across calls instead of growing a fresh
// slice from nil every time; decodeChunked may return a different
// backing array than scratch if growth outgrew its capacity. It returns
// the decoded body, the number of bytes consumed from buf (through the
// terminating zero-size chunk and its trailing CRLF), and a status
// (NeedMore/Complete/Error; never receives a "req" since it writes to
// the returned slice directly).
func decodeChunked(buf []byte, scratch []byte) ([]byte, int, Status) {
	body := scratch
	pos := 0
	for {
		lineEnd := bytes.Index(buf[pos:], []byte("\r\n"))
		if lineEnd < 0 {
			return nil, 0, NeedMore
		}
		sizeLine := buf[pos : pos+lineEnd]
		if semi := bytes.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}
		size, err := strconv.ParseInt(string(bytes.TrimSpace(sizeLine)), 16, 64)
		if err != nil || size < 0 {
			return nil, 0, Error
		}
		pos += lineEnd + 2

		if size == 0 {
			// Trailing headers (if any) followed by a final CRLF; with no
			// trailers the final CRLF comes right after the size line.
			if len(buf)-pos < 2 {
				return nil, 0, NeedMore
			}
			if buf[pos] == '\r' && buf[pos+1] == '\n' {
				return body, pos + 2, Complete
			}
			trailerEnd, ok := findHeaderEnd(buf[pos:])
			if !ok {
				return nil, 0, NeedMore
			}
			pos += trailerEnd + 4
			return body, pos, Complete
		}

		if len(buf)-pos < int(size)+2 {
			return nil, 0, NeedMore
		}
		body = append(body, buf[pos:pos+int(size)]...)
		pos += int(size)
		if buf[pos] != '\r' || buf[pos+1] != '\n' {
			return nil, 0, Error
		}
		pos += 2

		if len(body) > maxBodyBytes {
			return nil, 0, Error
		}
	}
}
