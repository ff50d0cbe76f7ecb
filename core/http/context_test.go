package http

import "testing"

type recordingWriter struct {
	chunks [][]byte
}

func (w *recordingWriter) Write(p []byte) {
	cp := append([]byte(nil), p...)
	w.chunks = append(w.chunks, cp)
}

func (w *recordingWriter) Flush() error { return nil }

func (w *recordingWriter) RawFD() int { return -1 }

func newTestContext() (*Context, *recordingWriter) {
	req := newTestRequest()
	resp := AcquireResponse()
	w := &recordingWriter{}
	return AcquireContext(req, resp, w, nil), w
}

func TestContextJSON(t *testing.T) {
	c, _ := newTestContext()
	if err := c.JSON(200, map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	if c.Response.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", c.Response.StatusCode)
	}
	if c.Response.Headers["Content-Type"] != "application/json" {
		t.Fatalf("content-type = %q", c.Response.Headers["Content-Type"])
	}
	if string(c.Response.Body) != `{"hello":"world"}` {
		t.Fatalf("body = %q", c.Response.Body)
	}
}

func TestContextErrorEmitsStandardEnvelope(t *testing.T) {
	c, _ := newTestContext()
	c.Error(500, "boom")

	if c.Response.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", c.Response.StatusCode)
	}
	want := `{"code":500,"data":null,"message":"boom","success":false}`
	if string(c.Response.Body) != want {
		t.Fatalf("body = %s, want %s", c.Response.Body, want)
	}
}

func TestContextParamsFixedAndOverflow(t *testing.T) {
	c, _ := newTestContext()
	for i := 0; i < 10; i++ {
		c.SetParam(string(rune('a'+i)), string(rune('0'+i)))
	}
	for i := 0; i < 10; i++ {
		key := string(rune('a' + i))
		want := string(rune('0' + i))
		if got := c.Param(key); got != want {
			t.Fatalf("Param(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestContextAbort(t *testing.T) {
	c, _ := newTestContext()
	if c.IsAborted() {
		t.Fatalf("IsAborted() = true before Abort()")
	}
	c.Abort()
	if !c.IsAborted() {
		t.Fatalf("IsAborted() = false after Abort()")
	}
}

func TestContextDataWritesThroughWriter(t *testing.T) {
	c, w := newTestContext()
	c.Data([]byte("stream-chunk"))
	if len(w.chunks) != 1 || string(w.chunks[0]) != "stream-chunk" {
		t.Fatalf("writer chunks = %v", w.chunks)
	}
}

func TestContextBind(t *testing.T) {
	c, _ := newTestContext()
	c.Request.Body = []byte(`{"name":"flow"}`)
	var v struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&v); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if v.Name != "flow" {
		t.Fatalf("Name = %q, want flow", v.Name)
	}
}
