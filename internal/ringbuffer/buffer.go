package ringbuffer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

// Handle identifies a live buffer within a Registry. The zero value is never valid.
type Handle int

// Region is a span of the buffer arena, expressed as offset and length.
type Region struct {
	Offset int
	Size   int
}

// Stats is a point-in-time snapshot of a buffer's bookkeeping.
type Stats struct {
	Handle       Handle  `json:"handle"`
	Capacity     int     `json:"capacity"`
	MaxEventSize int     `json:"max_event_size"`
	ReadOffset   int     `json:"read_offset"`
	WriteOffset  int     `json:"write_offset"`
	EndOffset    int     `json:"end_offset"`
	Level        int     `json:"level"`
	FillRatio    float64 `json:"fill_ratio"`
	WriteWraps   uint64  `json:"write_wraps"`
	ReadWraps    uint64  `json:"read_wraps"`
}

const (
	sideWrite = 0
	sideRead  = 1
)

var sideNames = [2]string{metrics.SideWrite, metrics.SideRead}

// Buffer is one circular byte arena with its read, write and end offsets.
//
// Exactly one goroutine may call the write side (AcquireWrite, CommitWrite) and
// exactly one goroutine the read side (AcquireRead, CommitRead). Level and
// Stats may be called from anywhere.
type Buffer struct {
	handle       Handle
	capacity     int
	maxEventSize int
	storage      []byte

	readOffset  atomic.Int64
	writeOffset atomic.Int64
	endOffset   atomic.Int64

	wraps [2]atomic.Uint64

	// waiting[side] is set while that side sleeps; the opposite commit then
	// posts a token on wake[side].
	waiting [2]atomic.Bool
	wake    [2]chan struct{}

	pollInterval time.Duration
	sw           *Switch
	metrics      *metrics.BufferMetrics
}

func newBuffer(h Handle, storage []byte, maxEventSize int, poll time.Duration, sw *Switch, m *metrics.BufferMetrics) *Buffer {
	return &Buffer{
		handle:       h,
		capacity:     len(storage),
		maxEventSize: maxEventSize,
		storage:      storage,
		wake:         [2]chan struct{}{make(chan struct{}, 1), make(chan struct{}, 1)},
		pollInterval: poll,
		sw:           sw,
		metrics:      m,
	}
}

// Handle returns the registry handle of the buffer.
func (b *Buffer) Handle() Handle { return b.handle }

// Capacity returns the arena size in bytes.
func (b *Buffer) Capacity() int { return b.capacity }

// MaxEventSize returns the upper bound of a single record.
func (b *Buffer) MaxEventSize() int { return b.maxEventSize }

// Bytes returns the arena slice addressed by r. The slice aliases the buffer
// and is only valid until the matching commit.
func (b *Buffer) Bytes(r Region) []byte {
	return b.storage[r.Offset : r.Offset+r.Size : r.Offset+r.Size]
}

// tryWrite returns a write region if maxEventSize contiguous bytes are free at
// the write offset.
func (b *Buffer) tryWrite() (Region, bool) {
	rp := int(b.readOffset.Load())
	wp := int(b.writeOffset.Load())
	limit := b.capacity - b.maxEventSize

	switch {
	case wp >= rp && wp+b.maxEventSize <= limit:
		// room before the tail
	case wp >= rp && rp > 0:
		// the next commit wraps; the head must not be the read position
	case wp < rp && wp+b.maxEventSize < rp:
		// strict, otherwise a full buffer would look empty
	default:
		return Region{}, false
	}
	return Region{Offset: wp, Size: b.maxEventSize}, true
}

// tryRead returns the contiguous unread span at the read offset, if any.
func (b *Buffer) tryRead() (Region, bool) {
	wp := int(b.writeOffset.Load())
	rp := int(b.readOffset.Load())
	if wp == rp {
		return Region{}, false
	}
	if wp > rp {
		return Region{Offset: rp, Size: wp - rp}, true
	}
	// endOffset is stored before writeOffset, so it is current here
	return Region{Offset: rp, Size: int(b.endOffset.Load()) - rp}, true
}

// AcquireWrite returns a region of MaxEventSize bytes the producer may fill,
// waiting up to timeout for space.
func (b *Buffer) AcquireWrite(timeout time.Duration) (Region, error) {
	return b.acquire(context.Background(), sideWrite, timeout)
}

// AcquireWriteContext is AcquireWrite that also returns when ctx is done.
func (b *Buffer) AcquireWriteContext(ctx context.Context, timeout time.Duration) (Region, error) {
	return b.acquire(ctx, sideWrite, timeout)
}

// AcquireRead returns the contiguous unread span at the read offset, waiting
// up to timeout for data. The record length is carried by the record itself.
func (b *Buffer) AcquireRead(timeout time.Duration) (Region, error) {
	return b.acquire(context.Background(), sideRead, timeout)
}

// AcquireReadContext is AcquireRead that also returns when ctx is done.
func (b *Buffer) AcquireReadContext(ctx context.Context, timeout time.Duration) (Region, error) {
	return b.acquire(ctx, sideRead, timeout)
}

func (b *Buffer) try(side int) (Region, bool) {
	if side == sideWrite {
		return b.tryWrite()
	}
	return b.tryRead()
}

func (b *Buffer) acquire(ctx context.Context, side int, timeout time.Duration) (Region, error) {
	if r, ok := b.try(side); ok {
		b.metrics.RecordAcquire(sideNames[side], metrics.StatusSuccess, 0)
		return r, nil
	}
	if timeout <= 0 || b.sw.IsSet() {
		b.metrics.RecordAcquire(sideNames[side], metrics.StatusTimeout, 0)
		return Region{}, ErrTimeout
	}

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	waiting := &b.waiting[side]
	defer waiting.Store(false)

	for {
		waiting.Store(true)
		if r, ok := b.try(side); ok {
			b.metrics.RecordAcquire(sideNames[side], metrics.StatusSuccess, time.Since(start).Seconds())
			return r, nil
		}

		select {
		case <-b.wake[side]:
		case <-ticker.C:
		case <-deadline.C:
			if r, ok := b.try(side); ok {
				b.metrics.RecordAcquire(sideNames[side], metrics.StatusSuccess, time.Since(start).Seconds())
				return r, nil
			}
			b.metrics.RecordAcquire(sideNames[side], metrics.StatusTimeout, time.Since(start).Seconds())
			return Region{}, ErrTimeout
		case <-b.sw.Done():
			b.metrics.RecordAcquire(sideNames[side], metrics.StatusTimeout, time.Since(start).Seconds())
			return Region{}, ErrTimeout
		case <-ctx.Done():
			b.metrics.RecordAcquire(sideNames[side], metrics.StatusCancelled, time.Since(start).Seconds())
			return Region{}, ctx.Err()
		}
	}
}

// notify wakes the given side if it is sleeping.
func (b *Buffer) notify(side int) {
	if !b.waiting[side].Load() {
		return
	}
	select {
	case b.wake[side] <- struct{}{}:
	default:
	}
}

// CommitWrite publishes size bytes written at the current write region. When
// fewer than MaxEventSize bytes would remain before the end of the arena, the
// end offset is recorded and the write offset wraps to zero.
func (b *Buffer) CommitWrite(size int) error {
	if size < 0 || size > b.maxEventSize {
		b.metrics.RecordInvalidCommit(metrics.SideWrite)
		return invalidCommit(b, metrics.SideWrite, size)
	}

	next := int(b.writeOffset.Load()) + size
	wrapped := false
	if next > b.capacity-b.maxEventSize {
		b.endOffset.Store(int64(next))
		next = 0
		wrapped = true
		b.wraps[sideWrite].Add(1)
	}
	b.writeOffset.Store(int64(next))

	if b.metrics != nil {
		b.metrics.RecordCommit(metrics.SideWrite, size, wrapped)
		b.metrics.UpdateLevel(b.Level())
	}
	b.notify(sideRead)
	return nil
}

// CommitRead releases size bytes at the read offset back to the producer.
// The read offset wraps to zero once it reaches the recorded end offset.
func (b *Buffer) CommitRead(size int) error {
	if size < 0 || size > b.maxEventSize {
		b.metrics.RecordInvalidCommit(metrics.SideRead)
		return invalidCommit(b, metrics.SideRead, size)
	}

	next := int(b.readOffset.Load()) + size
	wrapped := false
	if next+b.maxEventSize > b.capacity {
		next = 0
		wrapped = true
		b.wraps[sideRead].Add(1)
	}
	b.readOffset.Store(int64(next))

	if b.metrics != nil {
		b.metrics.RecordCommit(metrics.SideRead, size, wrapped)
		b.metrics.UpdateLevel(b.Level())
	}
	b.notify(sideWrite)
	return nil
}

// Level returns the number of bytes written but not yet read.
func (b *Buffer) Level() int {
	wp := int(b.writeOffset.Load())
	rp := int(b.readOffset.Load())
	if wp >= rp {
		return wp - rp
	}
	return int(b.endOffset.Load()) - rp + wp
}

// Stats returns a snapshot of the buffer. Offsets are loaded independently and
// may be mutually inconsistent while both sides are active.
func (b *Buffer) Stats() Stats {
	level := b.Level()
	return Stats{
		Handle:       b.handle,
		Capacity:     b.capacity,
		MaxEventSize: b.maxEventSize,
		ReadOffset:   int(b.readOffset.Load()),
		WriteOffset:  int(b.writeOffset.Load()),
		EndOffset:    int(b.endOffset.Load()),
		Level:        level,
		FillRatio:    float64(level) / float64(b.capacity),
		WriteWraps:   b.wraps[sideWrite].Load(),
		ReadWraps:    b.wraps[sideRead].Load(),
	}
}
