package security

import (
	"testing"
	"time"
)

func TestCheckFloodAllowsUnderThreshold(t *testing.T) {
	g := New()
	base := time.Now()

	for i := 0; i < ShortMaxRequests; i++ {
		if g.CheckFlood(base) {
			t.Fatalf("request %d tripped flood check under threshold", i)
		}
	}
}

func TestCheckFloodTripsShortWindow(t *testing.T) {
	g := New()
	base := time.Now()

	tripped := false
	for i := 0; i < ShortMaxRequests+5; i++ {
		if g.CheckFlood(base) {
			tripped = true
			break
		}
	}
	if !tripped {
		t.Fatalf("expected short window flood trip")
	}
}

func TestCheckFloodResetsAfterShortWindowElapses(t *testing.T) {
	g := New()
	base := time.Now()

	for i := 0; i < ShortMaxRequests; i++ {
		g.CheckFlood(base)
	}
	later := base.Add(ShortInterval + time.Millisecond)
	if g.CheckFlood(later) {
		t.Fatalf("expected flood check to pass after window elapsed")
	}
}

func TestSendQueueOverflow(t *testing.T) {
	g := New()
	for i := 0; i < MaxSendCount; i++ {
		g.IncrementSendCount()
	}
	if g.SendQueueOverflowed() {
		t.Fatalf("overflowed at exactly MaxSendCount, want not yet")
	}
	g.IncrementSendCount()
	if !g.SendQueueOverflowed() {
		t.Fatalf("expected overflow past MaxSendCount")
	}
	g.DecrementSendCount()
	if g.SendQueueOverflowed() {
		t.Fatalf("expected no overflow after decrement")
	}
}

func TestResetBumpsSequence(t *testing.T) {
	g := New()
	s1 := g.Sequence()
	g.Reset()
	if g.Sequence() != s1+1 {
		t.Fatalf("Sequence = %d, want %d", g.Sequence(), s1+1)
	}
}
