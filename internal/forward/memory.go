package forward

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
)

const framePrefix = 4

// MemorySink keeps the most recent frames in a bounded byte ring. When a new
// frame does not fit, the oldest frames are evicted.
type MemorySink struct {
	mu      sync.Mutex
	rb      *ringbuffer.RingBuffer
	frames  int
	evicted uint64
	closed  bool
}

// NewMemorySink returns a sink holding at most size bytes of frames,
// including a 4 byte length prefix per frame.
func NewMemorySink(size int) (*MemorySink, error) {
	if size <= framePrefix {
		return nil, errors.Newf("memory sink size %d too small", size).
			Component("forward").
			Category(errors.CategoryValidation).
			Build()
	}
	rb := ringbuffer.New(size)
	if rb == nil {
		return nil, errors.Newf("failed to allocate memory sink of %d bytes", size).
			Component("forward").
			Category(errors.CategorySystem).
			Build()
	}
	return &MemorySink{rb: rb}, nil
}

// Name implements Sink.
func (s *MemorySink) Name() string { return conf.SinkMemory }

// Send implements Sink.
func (s *MemorySink) Send(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	need := framePrefix + len(frame)
	if need > s.rb.Capacity() {
		return errors.Newf("%w: %d bytes, capacity %d", ErrFrameTooBig, need, s.rb.Capacity()).
			Component("forward").
			Category(errors.CategoryLimit).
			Build()
	}
	for s.rb.Free() < need {
		if _, err := s.pop(); err != nil {
			return err
		}
		s.evicted++
	}

	var prefix [framePrefix]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := s.rb.Write(prefix[:]); err != nil {
		return s.writeError(err)
	}
	if _, err := s.rb.Write(frame); err != nil {
		return s.writeError(err)
	}
	s.frames++
	return nil
}

func (s *MemorySink) writeError(err error) error {
	return errors.New(err).
		Component("forward").
		Category(errors.CategoryForward).
		Context("free", s.rb.Free()).
		Build()
}

// pop removes the oldest frame. Callers hold mu.
func (s *MemorySink) pop() ([]byte, error) {
	var prefix [framePrefix]byte
	if _, err := s.rb.Read(prefix[:]); err != nil {
		return nil, s.writeError(err)
	}
	frame := make([]byte, binary.LittleEndian.Uint32(prefix[:]))
	if len(frame) > 0 {
		if _, err := s.rb.Read(frame); err != nil {
			return nil, s.writeError(err)
		}
	}
	s.frames--
	return frame, nil
}

// Drain removes and returns all buffered frames, oldest first.
func (s *MemorySink) Drain() ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, 0, s.frames)
	for s.frames > 0 {
		frame, err := s.pop()
		if err != nil {
			return out, err
		}
		out = append(out, frame)
	}
	return out, nil
}

// Len returns the number of buffered frames.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Evicted returns how many frames were dropped to make room.
func (s *MemorySink) Evicted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Close implements Sink. Buffered frames stay readable through Drain.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
