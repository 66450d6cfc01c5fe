package ringbuffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

const (
	// DefaultMaxBuffers is the number of buffers a registry holds unless configured otherwise.
	DefaultMaxBuffers = 100

	// DefaultPollInterval is the re-check interval of a blocked acquire.
	DefaultPollInterval = 10 * time.Millisecond
)

// Registry owns a fixed number of buffer slots addressed by 1-based handles.
// Create and Delete serialize on a mutex and publish a new slot table; all
// other methods read the current table without locking.
type Registry struct {
	mu    sync.Mutex
	slots atomic.Pointer[[]*Buffer]

	maxBuffers   int
	pollInterval time.Duration
	memoryLimit  int64
	allocated    int64 // guarded by mu
	sw           *Switch
	metrics      *metrics.RingBufferMetrics
	logger       logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxBuffers sets the number of slots.
func WithMaxBuffers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxBuffers = n
		}
	}
}

// WithPollInterval sets how often a blocked acquire re-checks its buffer.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithSwitch makes the registry's buffers observe sw instead of the process-wide switch.
func WithSwitch(sw *Switch) Option {
	return func(r *Registry) {
		if sw != nil {
			r.sw = sw
		}
	}
}

// WithMemoryLimit caps the total arena bytes of all live buffers. Create
// returns ErrNoMemory when the limit would be exceeded. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(r *Registry) {
		r.memoryLimit = bytes
	}
}

// WithMetrics records lifecycle and hot path metrics to m.
func WithMetrics(m *metrics.RingBufferMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		maxBuffers:   DefaultMaxBuffers,
		pollInterval: DefaultPollInterval,
		sw:           DefaultSwitch(),
		logger:       GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := make([]*Buffer, r.maxBuffers)
	r.slots.Store(&empty)
	return r
}

// Switch returns the switch observed by the registry's buffers.
func (r *Registry) Switch() *Switch {
	return r.sw
}

// Create allocates a buffer of capacity bytes for records of at most
// maxEventSize bytes and returns its handle. The lowest free slot is used.
func (r *Registry) Create(capacity, maxEventSize int) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.slots.Load()
	slot := -1
	for i, b := range cur {
		if b == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		r.metrics.RecordCreate(0, capacity, metrics.StatusNoMemory)
		return 0, errors.Newf("%w: all %d buffer slots in use", ErrNoMemory, r.maxBuffers).
			Component("ringbuffer").
			Category(errors.CategoryLimit).
			BufferContext(0, capacity, maxEventSize).
			Build()
	}

	// Divided rather than doubled: 2*maxEventSize can overflow.
	if maxEventSize <= 0 || maxEventSize > capacity/2 {
		r.metrics.RecordCreate(0, capacity, metrics.StatusInvalidParam)
		return 0, errors.Newf("%w: capacity %d must be at least twice the max event size %d", ErrInvalidParam, capacity, maxEventSize).
			Component("ringbuffer").
			Category(errors.CategoryValidation).
			BufferContext(0, capacity, maxEventSize).
			Build()
	}

	if r.memoryLimit > 0 && r.allocated+int64(capacity) > r.memoryLimit {
		r.metrics.RecordCreate(0, capacity, metrics.StatusNoMemory)
		return 0, errors.Newf("%w: %d bytes requested, %d of %d bytes in use", ErrNoMemory, capacity, r.allocated, r.memoryLimit).
			Component("ringbuffer").
			Category(errors.CategoryResource).
			BufferContext(0, capacity, maxEventSize).
			Build()
	}

	storage, err := allocate(capacity)
	if err != nil {
		r.metrics.RecordCreate(0, capacity, metrics.StatusNoMemory)
		return 0, errors.New(err).
			Component("ringbuffer").
			Category(errors.CategorySystem).
			Priority(errors.PriorityHigh).
			BufferContext(0, capacity, maxEventSize).
			Build()
	}

	h := Handle(slot + 1)
	b := newBuffer(h, storage, maxEventSize, r.pollInterval, r.sw, r.metrics.ForBuffer(int(h), capacity))

	next := make([]*Buffer, len(cur))
	copy(next, cur)
	next[slot] = b
	r.slots.Store(&next)
	r.allocated += int64(capacity)

	r.metrics.RecordCreate(int(h), capacity, metrics.StatusSuccess)
	r.logger.Debug("ring buffer created",
		logger.Int("handle", int(h)),
		logger.Int("capacity", capacity),
		logger.Int("max_event_size", maxEventSize))
	return h, nil
}

// allocate turns an allocation panic into ErrNoMemory.
func allocate(capacity int) (storage []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: allocating %d bytes: %v", ErrNoMemory, capacity, rec)
		}
	}()
	return make([]byte, capacity), nil
}

// Delete releases the buffer addressed by h and frees its slot for reuse.
// Regions acquired from the buffer must not be used afterwards.
func (r *Registry) Delete(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.slots.Load()
	if h < 1 || int(h) > len(cur) || cur[h-1] == nil {
		r.metrics.RecordDelete(int(h), metrics.StatusInvalidHandle)
		return invalidHandle(h)
	}

	capacity := cur[h-1].capacity
	next := make([]*Buffer, len(cur))
	copy(next, cur)
	next[h-1] = nil
	r.slots.Store(&next)
	r.allocated -= int64(capacity)

	r.metrics.RecordDelete(int(h), metrics.StatusSuccess)
	r.logger.Debug("ring buffer deleted", logger.Int("handle", int(h)))
	return nil
}

// Buffer returns the buffer addressed by h. Producer and consumer loops hold
// on to it to skip the handle lookup.
func (r *Registry) Buffer(h Handle) (*Buffer, error) {
	cur := *r.slots.Load()
	if h < 1 || int(h) > len(cur) || cur[h-1] == nil {
		return nil, invalidHandle(h)
	}
	return cur[h-1], nil
}

// AcquireWrite acquires a write region on h, waiting up to timeout.
func (r *Registry) AcquireWrite(h Handle, timeout time.Duration) (Region, error) {
	b, err := r.Buffer(h)
	if err != nil {
		return Region{}, err
	}
	return b.AcquireWrite(timeout)
}

// AcquireWriteContext acquires a write region on h, waiting up to timeout or until ctx is done.
func (r *Registry) AcquireWriteContext(ctx context.Context, h Handle, timeout time.Duration) (Region, error) {
	b, err := r.Buffer(h)
	if err != nil {
		return Region{}, err
	}
	return b.AcquireWriteContext(ctx, timeout)
}

// CommitWrite publishes size bytes on h.
func (r *Registry) CommitWrite(h Handle, size int) error {
	b, err := r.Buffer(h)
	if err != nil {
		return err
	}
	return b.CommitWrite(size)
}

// AcquireRead acquires a read region on h, waiting up to timeout.
func (r *Registry) AcquireRead(h Handle, timeout time.Duration) (Region, error) {
	b, err := r.Buffer(h)
	if err != nil {
		return Region{}, err
	}
	return b.AcquireRead(timeout)
}

// AcquireReadContext acquires a read region on h, waiting up to timeout or until ctx is done.
func (r *Registry) AcquireReadContext(ctx context.Context, h Handle, timeout time.Duration) (Region, error) {
	b, err := r.Buffer(h)
	if err != nil {
		return Region{}, err
	}
	return b.AcquireReadContext(ctx, timeout)
}

// CommitRead releases size bytes on h.
func (r *Registry) CommitRead(h Handle, size int) error {
	b, err := r.Buffer(h)
	if err != nil {
		return err
	}
	return b.CommitRead(size)
}

// Level returns the unread byte count of h.
func (r *Registry) Level(h Handle) (int, error) {
	b, err := r.Buffer(h)
	if err != nil {
		return 0, err
	}
	return b.Level(), nil
}

// Len returns the number of live buffers.
func (r *Registry) Len() int {
	n := 0
	for _, b := range *r.slots.Load() {
		if b != nil {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of every live buffer ordered by handle.
func (r *Registry) Stats() []Stats {
	cur := *r.slots.Load()
	out := make([]Stats, 0, len(cur))
	for _, b := range cur {
		if b != nil {
			out = append(out, b.Stats())
		}
	}
	return out
}

// Close deletes every live buffer. Callers set the switch first if goroutines
// may still be waiting on one of them.
func (r *Registry) Close() {
	for _, st := range r.Stats() {
		_ = r.Delete(st.Handle)
	}
}
