package pools

import "testing"

func TestBytePoolGetReturnsRequestedLength(t *testing.T) {
	bp := NewBytePool()

	buf := bp.Get(100)
	if len(buf) != 100 {
		t.Fatalf("len = %d, want 100", len(buf))
	}

	buf = bp.Get(100000)
	if len(buf) != 100000 {
		t.Fatalf("oversized len = %d, want 100000", len(buf))
	}
}

func TestBytePoolPutReusesMatchingTier(t *testing.T) {
	bp := NewBytePoolWithSizes([]int{64})

	buf := bp.Get(64)
	buf[0] = 0xAB
	bp.Put(buf)

	reused := bp.Get(64)
	if cap(reused) != 64 {
		t.Fatalf("cap = %d, want 64", cap(reused))
	}
}

func TestBytePoolGetBufferPutBufferRoundTrip(t *testing.T) {
	bp := NewBytePool()

	ptr := bp.GetBuffer(512)
	if len(*ptr) != 512 {
		t.Fatalf("len = %d, want 512", len(*ptr))
	}
	bp.PutBuffer(ptr)
}

func TestGetBytesPutBytesGlobalPool(t *testing.T) {
	buf := GetBytes(2048)
	if len(buf) != 2048 {
		t.Fatalf("len = %d, want 2048", len(buf))
	}
	PutBytes(buf)
}
