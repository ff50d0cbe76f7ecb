package timer

import (
	"testing"
	"time"
)

func TestSweepFiresDueEntriesInDeadlineOrder(t *testing.T) {
	w := New()
	base := time.Now()

	w.Add(base.Add(3*time.Second), KindIdle, 1, "c", 0)
	w.Add(base.Add(1*time.Second), KindIdle, 2, "a", 0)
	w.Add(base.Add(2*time.Second), KindIdle, 3, "b", 0)

	fired := w.Sweep(base.Add(2500*time.Millisecond), nil)
	if len(fired) != 2 {
		t.Fatalf("fired = %d, want 2", len(fired))
	}
	if fired[0].Payload != "a" || fired[1].Payload != "b" {
		t.Fatalf("fired out of order: %v, %v", fired[0].Payload, fired[1].Payload)
	}
	if w.Len() != 1 {
		t.Fatalf("remaining = %d, want 1", w.Len())
	}
}

func TestCanceledEntryDoesNotFire(t *testing.T) {
	w := New()
	base := time.Now()
	e := w.Add(base.Add(time.Second), KindRequest, 1, "x", 0)
	w.Cancel(e)

	fired := w.Sweep(base.Add(2*time.Second), nil)
	if len(fired) != 0 {
		t.Fatalf("fired = %d, want 0 for canceled entry", len(fired))
	}
}

func TestRearmReinsertsInsteadOfFiring(t *testing.T) {
	w := New()
	base := time.Now()
	w.Add(base.Add(time.Second), KindKeepAlive, 1, "conn", 5*time.Second)

	fired := w.Sweep(base.Add(2*time.Second), func(e *Entry) bool { return true })
	if len(fired) != 0 {
		t.Fatalf("fired = %d, want 0 (rearmed)", len(fired))
	}
	if w.Len() != 1 {
		t.Fatalf("expected rearmed entry to remain in the wheel, Len = %d", w.Len())
	}

	fired = w.Sweep(base.Add(20*time.Second), func(e *Entry) bool { return false })
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1 after vetoing rearm", len(fired))
	}
}
