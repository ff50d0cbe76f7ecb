package sendqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueDrainsSubmittedJobs(t *testing.T) {
	q := New(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	var delivered atomic.Int32
	var mu sync.Mutex
	got := map[string]bool{}

	for _, payload := range []string{"a", "b", "c"} {
		p := payload
		q.Submit(Job{
			Sequence: 1,
			Payload:  []byte(p),
			Write: func(seq uint64, data []byte) bool {
				mu.Lock()
				got[string(data)] = true
				mu.Unlock()
				delivered.Add(1)
				return true
			},
		})
	}

	deadline := time.Now().Add(time.Second)
	for delivered.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if delivered.Load() != 3 {
		t.Fatalf("delivered = %d, want 3", delivered.Load())
	}
	for _, p := range []string{"a", "b", "c"} {
		if !got[p] {
			t.Fatalf("payload %q never delivered", p)
		}
	}

	cancel()
	wg.Wait()
}

func TestTrySubmitFailsWhenFull(t *testing.T) {
	q := New(1, 1)
	if !q.TrySubmit(Job{Write: func(uint64, []byte) bool { return true }}) {
		t.Fatalf("first TrySubmit should succeed")
	}
	if q.TrySubmit(Job{Write: func(uint64, []byte) bool { return true }}) {
		t.Fatalf("second TrySubmit should fail, queue capacity is 1")
	}
}
