package forward

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
)

// Content types announced by sinks that carry metadata.
const (
	ContentTypeJSON = "application/json"
	ContentTypeZstd = "application/zstd"
)

var (
	encoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	}}
	decoderPool = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	}}
)

// Codec compresses forwarded frames. The zero value passes frames through.
type Codec struct {
	compressed bool
}

// NewCodec returns the codec for a forward.compression setting.
func NewCodec(compression string) (Codec, error) {
	switch compression {
	case "", conf.CompressionNone:
		return Codec{}, nil
	case conf.CompressionZstd:
		return Codec{compressed: true}, nil
	default:
		return Codec{}, errors.Newf("unknown compression %q", compression).
			Component("forward").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Compressed reports whether frames are zstd compressed.
func (c Codec) Compressed() bool { return c.compressed }

// ContentType describes the encoded frame.
func (c Codec) ContentType() string {
	if c.compressed {
		return ContentTypeZstd
	}
	return ContentTypeJSON
}

// Encode appends the encoded form of payload to dst.
func (c Codec) Encode(dst, payload []byte) []byte {
	if !c.compressed {
		return append(dst, payload...)
	}
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(payload, dst)
}

// Decode appends the decoded form of frame to dst.
func (c Codec) Decode(dst, frame []byte) ([]byte, error) {
	if !c.compressed {
		return append(dst, frame...), nil
	}
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	out, err := dec.DecodeAll(frame, dst)
	if err != nil {
		return nil, errors.New(err).
			Component("forward").
			Category(errors.CategoryEncoding).
			Context("frame_bytes", len(frame)).
			Build()
	}
	return out, nil
}
