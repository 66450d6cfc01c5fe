package forward

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

func TestMemorySinkKeepsOrder(t *testing.T) {
	t.Parallel()

	sink, err := NewMemorySink(1024)
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, sink.Send(context.Background(), fmt.Appendf(nil, "frame-%d", i)))
	}
	assert.Equal(t, 5, sink.Len())

	frames, err := sink.Drain()
	require.NoError(t, err)
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, fmt.Sprintf("frame-%d", i), string(f))
	}
	assert.Equal(t, 0, sink.Len())
}

func TestMemorySinkEvictsOldest(t *testing.T) {
	t.Parallel()

	// each frame takes 4+12 bytes, so 64 bytes hold four of them
	sink, err := NewMemorySink(64)
	require.NoError(t, err)

	for i := range 6 {
		require.NoError(t, sink.Send(context.Background(), fmt.Appendf(nil, "frame-%06d", i)))
	}
	assert.Equal(t, uint64(2), sink.Evicted())

	frames, err := sink.Drain()
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, "frame-000002", string(frames[0]))
	assert.Equal(t, "frame-000005", string(frames[3]))
}

func TestMemorySinkRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	sink, err := NewMemorySink(16)
	require.NoError(t, err)
	err = sink.Send(context.Background(), make([]byte, 13))
	assert.ErrorIs(t, err, ErrFrameTooBig)

	_, err = NewMemorySink(4)
	assert.Error(t, err)
}

func TestMemorySinkClosed(t *testing.T) {
	t.Parallel()

	sink, err := NewMemorySink(64)
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), []byte("kept")))
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Send(context.Background(), []byte("late")), ErrSinkClosed)

	frames, err := sink.Drain()
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestInstrumentRecordsDelivery(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewForwardMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	mem, err := NewMemorySink(32)
	require.NoError(t, err)
	sink := Instrument(mem, m)

	require.NoError(t, sink.Send(context.Background(), []byte("ok")))
	require.Error(t, sink.Send(context.Background(), make([]byte, 64)))

	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered.WithLabelValues(conf.SinkMemory)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(conf.SinkMemory)), 0)
	assert.Same(t, mem, Instrument(mem, nil))
}

func TestNewBuildsMemorySink(t *testing.T) {
	settings := &conf.Settings{}
	settings.Forward.Sink = conf.SinkMemory
	settings.Forward.MemorySize = 256

	sink, err := New(context.Background(), settings, Options{})
	require.NoError(t, err)
	assert.Equal(t, conf.SinkMemory, sink.Name())
	_, ok := sink.(*MemorySink)
	assert.True(t, ok, "without metrics the sink is not wrapped")
}
