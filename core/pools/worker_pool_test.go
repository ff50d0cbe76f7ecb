package pools

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	done := make(chan bool)
	var counter atomic.Int64

	// Submit 100 tasks
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			counter.Add(1)
		})
	}

	// Wait for completion
	go func() {
		for {
			stats := pool.Stats()
			if stats.TasksCompleted >= 100 {
				done <- true
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	select {
	case <-done:
		if counter.Load() != 100 {
			t.Errorf("Expected 100 tasks completed, got %d", counter.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Test timeout")
	}
}

func TestWorkerPool_UnevenTaskDurations(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64

	// Submit tasks that take different time; with a shared FIFO queue a
	// slow task only blocks the worker that picked it up, not the whole
	// pool's progress.
	for i := 0; i < 100; i++ {
		i := i
		pool.Submit(func() {
			if i%10 == 0 {
				time.Sleep(10 * time.Millisecond)
			}
			counter.Add(1)
		})
	}

	time.Sleep(500 * time.Millisecond)

	stats := pool.Stats()
	if stats.TasksCompleted < 100 {
		t.Errorf("Expected 100 tasks completed, got %d", stats.TasksCompleted)
	}
}

func TestWorkerPool_TrySubmitFailsWhenQueueFull(t *testing.T) {
	pool := NewWorkerPoolSize(1, 1)
	defer pool.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func() { close(started); <-block }) // occupies the single worker
	<-started                                       // the worker has dequeued it
	if !pool.TrySubmit(func() {}) {                 // fills the 1-deep queue
		t.Fatalf("expected TrySubmit to succeed filling the queue")
	}
	if pool.TrySubmit(func() {}) {
		t.Fatalf("expected TrySubmit to fail once queue and worker are both busy")
	}
	close(block)
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(8)
	defer pool.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.Submit(func() {
				// Simulate some work
				_ = 1 + 1
			})
		}
	})

	// Wait for completion
	for {
		stats := pool.Stats()
		if stats.TasksCompleted >= uint64(b.N) {
			break
		}
		time.Sleep(1 * time.Millisecond)
	}
}

func BenchmarkGoroutine_Direct(b *testing.B) {
	var wg atomic.Int64
	wg.Store(int64(b.N))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			go func() {
				// Simulate some work
				_ = 1 + 1
				wg.Add(-1)
			}()
		}
	})

	// Wait for completion
	for wg.Load() > 0 {
		time.Sleep(1 * time.Millisecond)
	}
}
