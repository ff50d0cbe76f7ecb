// Package sendqueue implements an optional background drain path for
// response bytes, additive to a connection's normal inline write
// handler. It exists for responses too large to flush in one
// non-blocking write without stalling the event loop.
package sendqueue

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity bounds how many sends may be outstanding across the
// queue at once, backpressuring producers once exhausted.
const DefaultCapacity = 1000

// Job is one deferred send: a connection-owned writer plus the bytes to
// flush and a sequence guard so a stale job (the connection was closed
// and its slot reused before this job ran) becomes a safe no-op.
type Job struct {
	Sequence uint64
	Write    func(seq uint64, p []byte) (ok bool)
	Payload  []byte
}

// Queue is a bounded, FIFO background sender. Submit blocks only when
// the queue is saturated (DefaultCapacity outstanding jobs); callers on
// the I/O goroutine should treat that as backpressure, not a bug.
type Queue struct {
	sem  *semaphore.Weighted
	jobs chan Job
	wg   sync.WaitGroup
}

// New returns a Queue with the given worker concurrency (how many jobs
// may be draining at once) and capacity (how many may be queued before
// Submit blocks).
func New(workers, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		sem:  semaphore.NewWeighted(int64(workers)),
		jobs: make(chan Job, capacity),
	}
}

// Submit enqueues a job for background draining. It blocks if the
// internal channel is full, which callers should treat as a backpressure
// signal (pair with core/security.Guard.SendQueueOverflowed to decide
// whether to reject new work instead of blocking indefinitely).
func (q *Queue) Submit(j Job) {
	q.jobs <- j
}

// TrySubmit enqueues a job without blocking, reporting false if the
// queue is currently full.
func (q *Queue) TrySubmit(j Job) bool {
	select {
	case q.jobs <- j:
		return true
	default:
		return false
	}
}

// Run drains jobs until ctx is canceled, running up to the configured
// worker concurrency at a time.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := q.sem.Acquire(ctx, 1); err != nil {
				return
			}
			q.wg.Add(1)
			go func(j Job) {
				defer q.wg.Done()
				defer q.sem.Release(1)
				j.Write(j.Sequence, j.Payload)
			}(j)
		}
	}
}

// Close stops accepting new jobs and waits for in-flight sends to
// finish.
func (q *Queue) Close() {
	close(q.jobs)
	q.wg.Wait()
}

// Len reports how many jobs are currently queued (not counting ones
// already picked up by a drain goroutine).
func (q *Queue) Len() int {
	return len(q.jobs)
}
