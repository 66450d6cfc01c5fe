package ringbuffer

import "github.com/dpscience/ddrs4pals/internal/errors"

// Sentinel errors. Management errors wrap these with handle and geometry
// context, so match them with errors.Is.
var (
	// ErrInvalidHandle is returned for a handle that does not address a live buffer.
	ErrInvalidHandle = errors.NewStd("ringbuffer: invalid handle")

	// ErrInvalidParam is returned when the capacity is smaller than twice the
	// maximum event size or a commit exceeds the maximum event size.
	ErrInvalidParam = errors.NewStd("ringbuffer: invalid parameter")

	// ErrNoMemory is returned when the registry is full or the arena cannot be allocated.
	ErrNoMemory = errors.NewStd("ringbuffer: no memory")

	// ErrTimeout is returned when no region became available in time. It is
	// an expected condition; callers retry or treat it as "try later".
	ErrTimeout = errors.NewStd("ringbuffer: timeout")
)

func invalidHandle(h Handle) error {
	return errors.New(ErrInvalidHandle).
		Component("ringbuffer").
		Category(errors.CategoryNotFound).
		Context("handle", int(h)).
		Build()
}

func invalidCommit(b *Buffer, side string, size int) error {
	return errors.Newf("%w: %s commit of %d bytes exceeds max event size %d", ErrInvalidParam, side, size, b.maxEventSize).
		Component("ringbuffer").
		Category(errors.CategoryValidation).
		BufferContext(int(b.handle), b.capacity, b.maxEventSize).
		Build()
}
