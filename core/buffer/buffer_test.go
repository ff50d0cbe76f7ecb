package buffer

import "testing"

func TestAppendPeekConsume(t *testing.T) {
	b := NewSize(8)
	b.Append([]byte("hello"))

	if got := string(b.Peek()); got != "hello" {
		t.Fatalf("Peek() = %q, want %q", got, "hello")
	}

	b.Consume(5)
	if b.Len() != 0 {
		t.Fatalf("Len() after full consume = %d, want 0", b.Len())
	}
}

func TestConsumePartialThenAppendReusesSpace(t *testing.T) {
	b := NewSize(8)
	b.Append([]byte("abcdefgh"))
	b.Consume(6)

	if got := string(b.Peek()); got != "gh" {
		t.Fatalf("Peek() = %q, want %q", got, "gh")
	}

	b.Append([]byte("ij"))
	if got := string(b.Peek()); got != "ghij" {
		t.Fatalf("Peek() = %q, want %q", got, "ghij")
	}
}

func TestGrowBeyondCapacity(t *testing.T) {
	b := NewSize(4)
	b.Append([]byte("0123456789"))

	if got := string(b.Peek()); got != "0123456789" {
		t.Fatalf("Peek() = %q, want %q", got, "0123456789")
	}
	if b.Cap() < 10 {
		t.Fatalf("Cap() = %d, want >= 10", b.Cap())
	}
}

func TestWritableTailAndMarkWritten(t *testing.T) {
	b := NewSize(8)
	tail := b.WritableTail(4)
	n := copy(tail, []byte("data"))
	b.MarkWritten(n)

	if got := string(b.Peek()); got != "data" {
		t.Fatalf("Peek() = %q, want %q", got, "data")
	}
}

func TestResetDropsData(t *testing.T) {
	b := NewSize(8)
	b.Append([]byte("xyz"))
	b.Reset()

	if b.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", b.Len())
	}
}
