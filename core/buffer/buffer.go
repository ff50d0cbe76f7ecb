// Package buffer implements the growable byte ring used to stage bytes
// read from and written to a connection's file descriptor.
package buffer

// initialCapacity is the capacity New allocates (and NewSize uses for
// n <= 0).
const initialCapacity = 16 * 1024

// compactThreshold is the fraction of capacity that must sit before the
// read cursor before append() bothers to slide the unread bytes down
// instead of growing the backing array.
const compactThreshold = 0.5

// Buffer is a contiguous byte region with independent read and write
// cursors. Bytes in [0, read) have been consumed; bytes in [read, write)
// are unread; bytes in [write, cap) are free for syscalls to fill.
//
// Buffer is not safe for concurrent use; callers are expected to hold
// whatever lock guards the owning Connection.
type Buffer struct {
	buf   []byte
	read  int
	write int
}

// New allocates a Buffer with the default initial capacity.
func New() *Buffer {
	return &Buffer{buf: make([]byte, initialCapacity)}
}

// NewSize allocates a Buffer with the given initial capacity.
func NewSize(n int) *Buffer {
	if n <= 0 {
		n = initialCapacity
	}
	return &Buffer{buf: make([]byte, n)}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return b.write - b.read }

// Cap returns the total backing capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Peek returns a view of the unread bytes. The returned slice aliases
// the Buffer's backing array and is only valid until the next call to
// Append, WritableTail, or Reset.
func (b *Buffer) Peek() []byte {
	return b.buf[b.read:b.write]
}

// Consume advances the read cursor by n bytes. Both cursors reset to
// zero once the buffer is fully drained, so a subsequent write starts
// at the front of the backing array again.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	b.read += n
	if b.read > b.write {
		b.read = b.write
	}
	if b.read == b.write {
		b.read, b.write = 0, 0
	}
}

// WritableTail returns the region behind the write cursor, growing the
// backing array (via compaction or doubling) so at least min bytes are
// available. Callers issue a direct read syscall into the returned slice
// and then call MarkWritten with however many bytes landed.
func (b *Buffer) WritableTail(min int) []byte {
	b.ensure(min)
	return b.buf[b.write:]
}

// MarkWritten advances the write cursor by n bytes, as returned by a
// read syscall into the slice from WritableTail.
func (b *Buffer) MarkWritten(n int) {
	if n <= 0 {
		return
	}
	b.write += n
}

// Append copies p into the buffer's writable tail, growing as needed,
// and advances the write cursor. Used for staging response bytes rather
// than reading off the wire.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.ensure(len(p))
	n := copy(b.buf[b.write:], p)
	b.write += n
}

// Reset drops all buffered data without releasing the backing array, so
// the Buffer can be handed back to a pool and reused.
func (b *Buffer) Reset() {
	b.read, b.write = 0, 0
}

// ensure grows or compacts the backing array so at least `free` bytes
// are available past the write cursor. Compaction moves the unread
// bytes and growth reallocates the backing array, so a slice returned
// by Peek must not be used after a call that reaches ensure.
func (b *Buffer) ensure(free int) {
	if len(b.buf)-b.write >= free {
		return
	}

	unread := b.write - b.read
	// Compacting is enough if the already-consumed prefix is large
	// relative to capacity and the unread tail plus the new data still
	// fits.
	if b.read > 0 && float64(b.read) >= float64(len(b.buf))*compactThreshold &&
		unread+free <= len(b.buf) {
		copy(b.buf, b.buf[b.read:b.write])
		b.read = 0
		b.write = unread
		return
	}

	newCap := len(b.buf)
	if newCap == 0 {
		newCap = initialCapacity
	}
	for newCap-unread < free {
		newCap *= 2
	}

	next := make([]byte, newCap)
	copy(next, b.buf[b.read:b.write])
	b.buf = next
	b.write = unread
	b.read = 0
}
