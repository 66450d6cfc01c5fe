package forward

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpscience/ddrs4pals/internal/conf"
)

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func testHeader() StreamHeader {
	acq := &conf.AcquisitionSettings{Channels: 2, Samples: 1024, SampleSpeed: 5.12}
	return HeaderFromSettings(acq, Codec{compressed: true})
}

func TestHeaderFromSettings(t *testing.T) {
	t.Parallel()

	h := testHeader()
	assert.Equal(t, StreamVersion, h.Version)
	assert.True(t, h.Compressed)
	assert.Equal(t, 2, h.Channels)
	assert.Equal(t, 1024, h.Samples)
	assert.InDelta(t, 200.0, h.Sweep, 1e-9)
}

func TestWriterSinkRoundTrip(t *testing.T) {
	t.Parallel()

	var buf closeBuffer
	sink, err := NewWriterSink(&buf, testHeader())
	require.NoError(t, err)

	frames := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xAB}, 5000)}
	for _, f := range frames {
		require.NoError(t, sink.Send(context.Background(), f))
	}
	require.NoError(t, sink.Close())
	assert.True(t, buf.closed)
	assert.ErrorIs(t, sink.Send(context.Background(), []byte("late")), ErrSinkClosed)
	assert.NoError(t, sink.Close(), "second close is a no-op")

	sr, err := NewStreamReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, testHeader(), sr.Header())

	for i, want := range frames {
		got, err := sr.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got)
	}
	_, err = sr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReaderRejectsForeignData(t *testing.T) {
	t.Parallel()

	_, err := NewStreamReader(bytes.NewReader([]byte("RIFF....WAVEfmt ")))
	assert.ErrorIs(t, err, ErrBadStream)

	_, err = NewStreamReader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrBadStream)
}

func TestStreamReaderTruncatedFrame(t *testing.T) {
	t.Parallel()

	var buf closeBuffer
	sink, err := NewWriterSink(&buf, testHeader())
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), []byte("0123456789")))
	require.NoError(t, sink.Close())

	data := buf.Bytes()[:buf.Len()-3]
	sr, err := NewStreamReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = sr.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestNewBuildsFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.stream")
	settings := &conf.Settings{}
	settings.Forward.Sink = conf.SinkWriter
	settings.Forward.Path = path

	sink, err := New(context.Background(), settings, Options{Header: testHeader()})
	require.NoError(t, err)
	assert.Equal(t, conf.SinkWriter, sink.Name())
	require.NoError(t, sink.Send(context.Background(), []byte("payload")))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sr, err := NewStreamReader(f)
	require.NoError(t, err)
	got, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestNewRejectsUnknownSink(t *testing.T) {
	settings := &conf.Settings{}
	settings.Forward.Sink = "carrier-pigeon"
	_, err := New(context.Background(), settings, Options{})
	assert.Error(t, err)
}
