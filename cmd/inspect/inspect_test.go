package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpscience/ddrs4pals/internal/acquisition"
	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/forward"
)

type closeBuffer struct{ bytes.Buffer }

func (*closeBuffer) Close() error { return nil }

func event(seq uint64, lifetime float64, valid bool) acquisition.CalibratedEvent {
	return acquisition.CalibratedEvent{Seq: seq, Lifetime: lifetime, Valid: valid}
}

// writeStream records frames the way the worker forwards them.
func writeStream(t *testing.T, compression string, frames ...acquisition.Frame) []byte {
	t.Helper()
	codec, err := forward.NewCodec(compression)
	require.NoError(t, err)

	var out closeBuffer
	sink, err := forward.NewWriterSink(&out, forward.StreamHeader{
		Version:     forward.StreamVersion,
		Compressed:  codec.Compressed(),
		Channels:    2,
		Samples:     1024,
		SampleSpeed: 5.12,
		Sweep:       200,
	})
	require.NoError(t, err)

	for _, f := range frames {
		raw, err := json.Marshal(f)
		require.NoError(t, err)
		require.NoError(t, sink.Send(context.Background(), codec.Encode(nil, raw)))
	}
	require.NoError(t, sink.Close())
	return out.Bytes()
}

func TestSummarize(t *testing.T) {
	for _, compression := range []string{conf.CompressionNone, conf.CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			stream := writeStream(t, compression,
				acquisition.Frame{Run: "a", Events: []acquisition.CalibratedEvent{
					event(1, 0.2, true), event(2, 0, false), event(3, 0.4, true),
				}},
				acquisition.Frame{Run: "a", Events: []acquisition.CalibratedEvent{
					event(5, 0.6, true),
				}},
			)

			var lines bytes.Buffer
			s, err := Summarize(bytes.NewReader(stream), &lines)
			require.NoError(t, err)

			assert.Equal(t, compression == conf.CompressionZstd, s.Header.Compressed)
			assert.Equal(t, 1024, s.Header.Samples)
			assert.Equal(t, []string{"a"}, s.Runs)
			assert.Equal(t, 2, s.Frames)
			assert.Equal(t, 4, s.Events)
			assert.Equal(t, 3, s.Valid)
			assert.InDelta(t, 0.4, s.MeanLifetime, 1e-9)
			assert.Equal(t, uint64(1), s.FirstSeq)
			assert.Equal(t, uint64(5), s.LastSeq)
			assert.Equal(t, 1, s.Gaps)
			assert.Equal(t, 2, strings.Count(lines.String(), "\n"))
		})
	}
}

func TestSummarizeGapInsideFrame(t *testing.T) {
	stream := writeStream(t, conf.CompressionNone,
		acquisition.Frame{Run: "a", Events: []acquisition.CalibratedEvent{event(1, 0.1, true), event(4, 0.1, true)}},
		acquisition.Frame{Run: "b", Events: []acquisition.CalibratedEvent{event(1, 0.1, true)}},
	)

	s, err := Summarize(bytes.NewReader(stream), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Runs)
	assert.Equal(t, 1, s.Gaps)
}

func TestSummarizeRejectsForeignData(t *testing.T) {
	_, err := Summarize(strings.NewReader("definitely not a stream header, just text"), nil)
	assert.ErrorIs(t, err, forward.ErrBadStream)
}

func TestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.stream")
	require.NoError(t, os.WriteFile(path, writeStream(t, conf.CompressionNone,
		acquisition.Frame{Run: "a", Events: []acquisition.CalibratedEvent{event(1, 0.25, true)}},
	), 0o600))

	var out bytes.Buffer
	cmd := Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "2 channels x 1024 cells")
	assert.Contains(t, out.String(), "Mean lifetime:  0.2500 ns")

	out.Reset()
	cmd = Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json", path})
	require.NoError(t, cmd.Execute())
	var s Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Equal(t, 1, s.Events)

	cmd = Command()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, cmd.Execute())
}
