package forward

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
)

// Stream layout, little-endian:
//
//	magic [8]byte | version u16 | flags u16 | channels u16 | reserved u16 |
//	samples u32 | reserved u32 | sample speed f64 (GHz) | sweep f64 (ns)
//
// followed by frames, each prefixed with its u32 length.
const (
	StreamVersion    uint16 = 1
	streamHeaderSize        = 40
	flagZstd         uint16 = 1 << 0
)

var streamMagic = [8]byte{'D', 'R', 'S', '4', 'P', 'A', 'L', 'S'}

// Stream errors.
var (
	ErrBadStream   = errors.NewStd("forward: not a pulse stream")
	ErrSinkClosed  = errors.NewStd("forward: sink closed")
	ErrFrameTooBig = errors.NewStd("forward: frame exceeds sink capacity")
)

// StreamHeader describes the acquisition a stream was recorded with.
type StreamHeader struct {
	Version     uint16
	Compressed  bool
	Channels    int
	Samples     int
	SampleSpeed float64 // GHz
	Sweep       float64 // ns
}

// HeaderFromSettings returns the header for streams recorded with acq.
func HeaderFromSettings(acq *conf.AcquisitionSettings, codec Codec) StreamHeader {
	h := StreamHeader{
		Version:     StreamVersion,
		Compressed:  codec.Compressed(),
		Channels:    acq.Channels,
		Samples:     acq.Samples,
		SampleSpeed: acq.SampleSpeed,
	}
	if acq.SampleSpeed > 0 {
		h.Sweep = float64(acq.Samples) / acq.SampleSpeed
	}
	return h
}

func (h StreamHeader) marshal() []byte {
	buf := make([]byte, streamHeaderSize)
	le := binary.LittleEndian
	copy(buf, streamMagic[:])
	le.PutUint16(buf[8:], h.Version)
	var flags uint16
	if h.Compressed {
		flags |= flagZstd
	}
	le.PutUint16(buf[10:], flags)
	le.PutUint16(buf[12:], uint16(h.Channels))
	le.PutUint32(buf[16:], uint32(h.Samples))
	le.PutUint64(buf[24:], math.Float64bits(h.SampleSpeed))
	le.PutUint64(buf[32:], math.Float64bits(h.Sweep))
	return buf
}

func unmarshalHeader(buf []byte) (StreamHeader, error) {
	if len(buf) < streamHeaderSize || [8]byte(buf[:8]) != streamMagic {
		return StreamHeader{}, ErrBadStream
	}
	le := binary.LittleEndian
	h := StreamHeader{
		Version:     le.Uint16(buf[8:]),
		Compressed:  le.Uint16(buf[10:])&flagZstd != 0,
		Channels:    int(le.Uint16(buf[12:])),
		Samples:     int(le.Uint32(buf[16:])),
		SampleSpeed: math.Float64frombits(le.Uint64(buf[24:])),
		Sweep:       math.Float64frombits(le.Uint64(buf[32:])),
	}
	if h.Version != StreamVersion {
		return StreamHeader{}, errors.Newf("%w: version %d", ErrBadStream, h.Version).
			Component("forward").
			Category(errors.CategoryEncoding).
			Build()
	}
	return h, nil
}

// WriterSink appends length-prefixed frames to a stream after a StreamHeader.
type WriterSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	closed bool
}

// NewWriterSink writes header to wc and returns the sink. Closing the sink closes wc.
func NewWriterSink(wc io.WriteCloser, header StreamHeader) (*WriterSink, error) {
	bw := bufio.NewWriter(wc)
	if _, err := bw.Write(header.marshal()); err != nil {
		return nil, errors.New(err).
			Component("forward").
			Category(errors.CategoryFileIO).
			Build()
	}
	return &WriterSink{w: bw, closer: wc}, nil
}

// Name implements Sink.
func (s *WriterSink) Name() string { return conf.SinkWriter }

// Send implements Sink.
func (s *WriterSink) Send(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := s.w.Write(prefix[:]); err != nil {
		return s.ioError(err)
	}
	if _, err := s.w.Write(frame); err != nil {
		return s.ioError(err)
	}
	return nil
}

func (s *WriterSink) ioError(err error) error {
	return errors.New(err).
		Component("forward").
		Category(errors.CategoryFileIO).
		Build()
}

// Flush writes buffered frames to the underlying writer.
func (s *WriterSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return s.w.Flush()
}

// Close implements Sink.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	ferr := s.w.Flush()
	cerr := s.closer.Close()
	if ferr != nil {
		return s.ioError(ferr)
	}
	if cerr != nil {
		return s.ioError(cerr)
	}
	return nil
}

// StreamReader reads frames written by a WriterSink.
type StreamReader struct {
	r      *bufio.Reader
	header StreamHeader
	buf    []byte
}

// NewStreamReader reads and validates the stream header.
func NewStreamReader(r io.Reader) (*StreamReader, error) {
	br := bufio.NewReader(r)
	raw := make([]byte, streamHeaderSize)
	if _, err := io.ReadFull(br, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadStream
		}
		return nil, err
	}
	h, err := unmarshalHeader(raw)
	if err != nil {
		return nil, err
	}
	return &StreamReader{r: br, header: h}, nil
}

// Header returns the stream header.
func (sr *StreamReader) Header() StreamHeader { return sr.header }

// Next returns the next frame, valid until the following call. It returns
// io.EOF at a clean end of stream and io.ErrUnexpectedEOF on a truncated frame.
func (sr *StreamReader) Next() ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(sr.r, prefix[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(prefix[:]))
	if cap(sr.buf) < n {
		sr.buf = make([]byte, n)
	}
	sr.buf = sr.buf[:n]
	if _, err := io.ReadFull(sr.r, sr.buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return sr.buf, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
