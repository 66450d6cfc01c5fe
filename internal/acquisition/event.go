// event.go: fixed-layout binary event record written into and read from ring buffer regions in place.
package acquisition

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/dpscience/ddrs4pals/internal/errors"
)

// Record layout, little-endian:
//
//	magic u16 | version u8 | channels u8 | size u32 | seq u64 | timestamp i64 | samples u32 | reserved u32
//
// followed, per channel, by samples float32 times (ns) and samples float32 voltages (mV).
const (
	EventMagic      uint16 = 0xD54E
	EventVersion    uint8  = 1
	EventHeaderSize        = 32

	// MaxChannels is the largest channel count a record can carry.
	MaxChannels = 8
)

// Codec errors.
var (
	ErrShortBuffer        = errors.NewStd("acquisition: buffer too short for event")
	ErrBadMagic           = errors.NewStd("acquisition: bad event magic")
	ErrUnsupportedVersion = errors.NewStd("acquisition: unsupported event version")
	ErrCorruptEvent       = errors.NewStd("acquisition: corrupt event header")
)

// Channel holds one digitized trace.
type Channel struct {
	Time    []float32 // ns
	Voltage []float32 // mV
}

// Event is one trigger: the traces of all channels recorded in the same sweep.
type Event struct {
	Seq       uint64
	Timestamp time.Time
	Samples   int
	Channels  []Channel
}

// NewEvent allocates an event with channels x samples cells.
func NewEvent(channels, samples int) *Event {
	ev := &Event{Samples: samples, Channels: make([]Channel, channels)}
	for i := range ev.Channels {
		ev.Channels[i] = Channel{
			Time:    make([]float32, samples),
			Voltage: make([]float32, samples),
		}
	}
	return ev
}

// EventSize returns the encoded size of an event with the given geometry.
func EventSize(channels, samples int) int {
	return EventHeaderSize + channels*samples*8
}

// Size returns the encoded size of ev.
func (ev *Event) Size() int {
	return EventSize(len(ev.Channels), ev.Samples)
}

// EncodeEvent writes ev into dst and returns the number of bytes written.
func EncodeEvent(dst []byte, ev *Event) (int, error) {
	if len(ev.Channels) == 0 || len(ev.Channels) > MaxChannels {
		return 0, errors.Newf("%w: %d channels", ErrCorruptEvent, len(ev.Channels)).
			Component("acquisition").
			Category(errors.CategoryEncoding).
			Build()
	}
	size := ev.Size()
	if len(dst) < size {
		return 0, errors.Newf("%w: need %d bytes, have %d", ErrShortBuffer, size, len(dst)).
			Component("acquisition").
			Category(errors.CategoryEncoding).
			Context("seq", ev.Seq).
			Build()
	}

	le := binary.LittleEndian
	le.PutUint16(dst[0:], EventMagic)
	dst[2] = EventVersion
	dst[3] = uint8(len(ev.Channels))
	le.PutUint32(dst[4:], uint32(size))
	le.PutUint64(dst[8:], ev.Seq)
	le.PutUint64(dst[16:], uint64(ev.Timestamp.UnixNano()))
	le.PutUint32(dst[24:], uint32(ev.Samples))
	le.PutUint32(dst[28:], 0)

	off := EventHeaderSize
	for i := range ev.Channels {
		ch := &ev.Channels[i]
		if len(ch.Time) < ev.Samples || len(ch.Voltage) < ev.Samples {
			return 0, errors.Newf("%w: channel %d holds fewer than %d samples", ErrCorruptEvent, i, ev.Samples).
				Component("acquisition").
				Category(errors.CategoryEncoding).
				Build()
		}
		off = putFloats(dst, off, ch.Time[:ev.Samples])
		off = putFloats(dst, off, ch.Voltage[:ev.Samples])
	}
	return off, nil
}

func putFloats(dst []byte, off int, src []float32) int {
	for _, v := range src {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
		off += 4
	}
	return off
}

// PeekEventSize returns the record size stored in the header at the start of src.
func PeekEventSize(src []byte) (int, error) {
	if len(src) < EventHeaderSize {
		return 0, ErrShortBuffer
	}
	if binary.LittleEndian.Uint16(src) != EventMagic {
		return 0, ErrBadMagic
	}
	return int(binary.LittleEndian.Uint32(src[4:])), nil
}

// DecodeEvent reads one record from the start of src into ev, reusing ev's
// slices when they are large enough. It returns the record size.
func DecodeEvent(src []byte, ev *Event) (int, error) {
	if len(src) < EventHeaderSize {
		return 0, ErrShortBuffer
	}
	le := binary.LittleEndian
	if le.Uint16(src) != EventMagic {
		return 0, errors.Newf("%w: 0x%04x", ErrBadMagic, le.Uint16(src)).
			Component("acquisition").
			Category(errors.CategoryEncoding).
			Build()
	}
	if src[2] != EventVersion {
		return 0, errors.Newf("%w: %d", ErrUnsupportedVersion, src[2]).
			Component("acquisition").
			Category(errors.CategoryEncoding).
			Build()
	}

	channels := int(src[3])
	size := int(le.Uint32(src[4:]))
	samples := int(le.Uint32(src[24:]))
	if channels == 0 || channels > MaxChannels || size != EventSize(channels, samples) {
		return 0, errors.Newf("%w: channels=%d samples=%d size=%d", ErrCorruptEvent, channels, samples, size).
			Component("acquisition").
			Category(errors.CategoryEncoding).
			Build()
	}
	if len(src) < size {
		return 0, errors.Newf("%w: record of %d bytes, have %d", ErrShortBuffer, size, len(src)).
			Component("acquisition").
			Category(errors.CategoryEncoding).
			Build()
	}

	ev.Seq = le.Uint64(src[8:])
	ev.Timestamp = time.Unix(0, int64(le.Uint64(src[16:])))
	ev.Samples = samples
	if cap(ev.Channels) < channels {
		ev.Channels = make([]Channel, channels)
	}
	ev.Channels = ev.Channels[:channels]

	off := EventHeaderSize
	for i := range ev.Channels {
		ch := &ev.Channels[i]
		ch.Time = growFloats(ch.Time, samples)
		ch.Voltage = growFloats(ch.Voltage, samples)
		off = getFloats(src, off, ch.Time)
		off = getFloats(src, off, ch.Voltage)
	}
	return size, nil
}

func growFloats(s []float32, n int) []float32 {
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}

func getFloats(src []byte, off int, dst []float32) int {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		off += 4
	}
	return off
}
