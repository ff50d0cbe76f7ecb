package pools

import "testing"

func TestBufferPoolGetSelectsTierBySize(t *testing.T) {
	bp := NewBufferPool()

	small := bp.Get(100)
	if small.Cap() != SmallBufferSize {
		t.Fatalf("small Cap = %d, want %d", small.Cap(), SmallBufferSize)
	}

	medium := bp.Get(SmallBufferSize + 1)
	if medium.Cap() != MediumBufferSize {
		t.Fatalf("medium Cap = %d, want %d", medium.Cap(), MediumBufferSize)
	}

	large := bp.Get(MediumBufferSize + 1)
	if large.Cap() != LargeBufferSize {
		t.Fatalf("large Cap = %d, want %d", large.Cap(), LargeBufferSize)
	}
}

func TestBufferPoolPutResetsBeforeReuse(t *testing.T) {
	bp := NewBufferPool()

	buf := bp.Get(10)
	buf.Append([]byte("hello"))
	bp.Put(buf)

	reused := bp.Get(10)
	if reused.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after Put/Get round trip", reused.Len())
	}
}

func TestBufferPoolStatsTracksHitRate(t *testing.T) {
	bp := NewBufferPool()
	bp.Get(10)
	bp.Get(10)

	stats := bp.Stats()
	if stats.TotalGets != 2 {
		t.Fatalf("TotalGets = %d, want 2", stats.TotalGets)
	}
	if stats.HitRate != 1 {
		t.Fatalf("HitRate = %v, want 1", stats.HitRate)
	}
}

func TestAcquireReleaseBufferGlobalPool(t *testing.T) {
	buf := AcquireBuffer(SmallBufferSize)
	buf.Append([]byte("x"))
	ReleaseBuffer(buf)

	stats := GetBufferStats()
	if stats.TotalGets == 0 {
		t.Fatalf("expected at least one recorded Get")
	}
}
