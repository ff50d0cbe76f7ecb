package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowgate/httpd/core/conn"
	"github.com/flowgate/httpd/core/pools"
)

func TestRecordRequestIncrementsCounters(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("GET", "/hello", 200, 5*time.Millisecond)
	r.RecordRequest("GET", "/hello", 500, 10*time.Millisecond)

	if got := testutilCount(t, r, "httpd_requests_total"); got != 2 {
		t.Fatalf("requests_total count = %d, want 2", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordRequest("GET", "/hello", 200, time.Millisecond)

	req := httptest.NewRequest("GET", "/internal/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty metrics exposition body")
	}
}

func TestPollPoolsStopsOnClose(t *testing.T) {
	r := NewRegistry()
	pool := conn.NewPool(4)
	wp := pools.NewWorkerPool(1)
	defer wp.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.PollPools(stop, 5*time.Millisecond, pool, wp)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PollPools did not return after stop was closed")
	}
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "other"}
	for status, want := range cases {
		if got := statusBucket(status); got != want {
			t.Errorf("statusBucket(%d) = %q, want %q", status, got, want)
		}
	}
}

// testutilCount sums a CounterVec's observed values from the
// registry's Gather output, avoiding a prometheus/client_golang/prometheus/testutil
// import for a single assertion.
func testutilCount(t *testing.T, r *Registry, name string) int {
	t.Helper()
	mfs, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return int(total)
}
