package reclaim

import (
	"testing"
	"time"
)

func TestSweepReleasesOnlyAfterGrace(t *testing.T) {
	r := New(time.Second)
	base := time.Now()
	r.Enqueue("conn-a", 1)

	var released []any
	r.Sweep(base.Add(500*time.Millisecond), func(p any, seq uint64) {
		released = append(released, p)
	})
	if len(released) != 0 {
		t.Fatalf("released = %v before grace elapsed, want none", released)
	}

	r.Sweep(base.Add(1500*time.Millisecond), func(p any, seq uint64) {
		released = append(released, p)
	})
	if len(released) != 1 || released[0] != "conn-a" {
		t.Fatalf("released = %v, want [conn-a]", released)
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", r.Pending())
	}
}

func TestSweepReleasesInEnqueueOrder(t *testing.T) {
	r := New(time.Millisecond)
	r.Enqueue("first", 1)
	r.Enqueue("second", 2)

	time.Sleep(5 * time.Millisecond)

	var released []any
	r.Sweep(time.Now(), func(p any, seq uint64) {
		released = append(released, p)
	})
	if len(released) != 2 || released[0] != "first" || released[1] != "second" {
		t.Fatalf("released = %v, want [first second]", released)
	}
}
