package pools

import (
	"sync"
	"sync/atomic"

	"github.com/flowgate/httpd/core/buffer"
)

// Buffer pool size tiers.
const (
	SmallBufferSize  = 2 * 1024  // 2KB for simple responses
	MediumBufferSize = 8 * 1024  // 8KB for typical JSON
	LargeBufferSize  = 32 * 1024 // 32KB for complex responses
)

// BufferPool manages core/buffer.Buffer instances across three size
// tiers, so connections needing a small response buffer don't compete
// for the same backing arrays as ones staging a large one.
type BufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool

	smallHits  atomic.Uint64
	mediumHits atomic.Uint64
	largeHits  atomic.Uint64
	totalGets  atomic.Uint64
}

// NewBufferPool creates a new buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small:  sync.Pool{New: func() any { return buffer.NewSize(SmallBufferSize) }},
		medium: sync.Pool{New: func() any { return buffer.NewSize(MediumBufferSize) }},
		large:  sync.Pool{New: func() any { return buffer.NewSize(LargeBufferSize) }},
	}
}

// Get acquires a reset Buffer sized for estimatedSize.
func (bp *BufferPool) Get(estimatedSize int) *buffer.Buffer {
	bp.totalGets.Add(1)

	switch {
	case estimatedSize <= SmallBufferSize:
		bp.smallHits.Add(1)
		return bp.small.Get().(*buffer.Buffer)
	case estimatedSize <= MediumBufferSize:
		bp.mediumHits.Add(1)
		return bp.medium.Get().(*buffer.Buffer)
	default:
		bp.largeHits.Add(1)
		return bp.large.Get().(*buffer.Buffer)
	}
}

// Put resets buf and returns it to the pool tier matching its capacity.
// Oversized buffers are left for the GC rather than pooled.
func (bp *BufferPool) Put(buf *buffer.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()

	switch {
	case buf.Cap() <= SmallBufferSize:
		bp.small.Put(buf)
	case buf.Cap() <= MediumBufferSize:
		bp.medium.Put(buf)
	case buf.Cap() <= LargeBufferSize:
		bp.large.Put(buf)
	}
}

// BufferStats contains buffer pool statistics.
type BufferStats struct {
	SmallHits  uint64
	MediumHits uint64
	LargeHits  uint64
	TotalGets  uint64
	HitRate    float64
}

// Stats returns buffer pool statistics.
func (bp *BufferPool) Stats() BufferStats {
	total := bp.totalGets.Load()
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(bp.smallHits.Load()+bp.mediumHits.Load()+bp.largeHits.Load()) / float64(total)
	}
	return BufferStats{
		SmallHits:  bp.smallHits.Load(),
		MediumHits: bp.mediumHits.Load(),
		LargeHits:  bp.largeHits.Load(),
		TotalGets:  total,
		HitRate:    hitRate,
	}
}

// Global buffer pool.
var globalBufferPool = NewBufferPool()

// AcquireBuffer gets a buffer from the global pool.
func AcquireBuffer(estimatedSize int) *buffer.Buffer {
	return globalBufferPool.Get(estimatedSize)
}

// ReleaseBuffer returns a buffer to the global pool.
func ReleaseBuffer(buf *buffer.Buffer) {
	globalBufferPool.Put(buf)
}

// GetBufferStats returns statistics for the global buffer pool.
func GetBufferStats() BufferStats {
	return globalBufferPool.Stats()
}
