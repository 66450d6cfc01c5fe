package ringbuffer

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

func TestCreateCapacityBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		capacity     int
		maxEventSize int
		wantErr      error
	}{
		{"below twice max event", 100, 60, ErrInvalidParam},
		{"exactly twice max event", 120, 60, nil},
		{"large", 1 << 20, 8192, nil},
		{"zero max event", 100, 0, ErrInvalidParam},
		{"negative max event", 100, -1, ErrInvalidParam},
		{"zero capacity", 0, 10, ErrInvalidParam},
		{"odd capacity", 121, 60, nil},
		{"overflowing max event", 100, math.MaxInt/2 + 1, ErrInvalidParam},
		{"max int max event", math.MaxInt, math.MaxInt, ErrInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRegistry(t)

			h, err := r.Create(tt.capacity, tt.maxEventSize)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, h)
				assert.Zero(t, r.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Handle(1), h)
		})
	}
}

func TestCreateErrorCarriesContext(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	_, err := r.Create(100, 60)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least twice")

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryValidation, ee.Category)
	assert.Equal(t, 100, ee.GetContext()["capacity"])
	assert.Equal(t, 60, ee.GetContext()["max_event_size"])
}

func TestRegistryFull(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	for i := 1; i <= DefaultMaxBuffers; i++ {
		h, err := r.Create(64, 32)
		require.NoError(t, err)
		require.Equal(t, Handle(i), h)
	}
	assert.Equal(t, DefaultMaxBuffers, r.Len())

	_, err := r.Create(64, 32)
	require.ErrorIs(t, err, ErrNoMemory)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))

	// slot exhaustion is reported before parameter validation
	_, err = r.Create(10, 60)
	assert.ErrorIs(t, err, ErrNoMemory)
}

func TestHandleReuse(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, WithMaxBuffers(4))

	for range 3 {
		_, err := r.Create(64, 32)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delete(2))
	assert.Equal(t, 2, r.Len())

	h, err := r.Create(128, 32)
	require.NoError(t, err)
	assert.Equal(t, Handle(2), h, "lowest free slot is reused")

	b, err := r.Buffer(h)
	require.NoError(t, err)
	assert.Equal(t, 128, b.Capacity())
	assert.Equal(t, 0, b.Level(), "reused slot starts empty")

	h, err = r.Create(64, 32)
	require.NoError(t, err)
	assert.Equal(t, Handle(4), h)

	_, err = r.Create(64, 32)
	assert.ErrorIs(t, err, ErrNoMemory)
}

func TestInvalidHandle(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	h, err := r.Create(256, 64)
	require.NoError(t, err)
	require.NoError(t, r.Delete(h))

	for _, bad := range []Handle{0, -1, h, DefaultMaxBuffers + 1} {
		_, err := r.AcquireWrite(bad, 0)
		assert.ErrorIs(t, err, ErrInvalidHandle, "handle %d", bad)
		_, err = r.AcquireRead(bad, 0)
		assert.ErrorIs(t, err, ErrInvalidHandle)
		assert.ErrorIs(t, r.CommitWrite(bad, 1), ErrInvalidHandle)
		assert.ErrorIs(t, r.CommitRead(bad, 1), ErrInvalidHandle)
		_, err = r.Level(bad)
		assert.ErrorIs(t, err, ErrInvalidHandle)
		assert.ErrorIs(t, r.Delete(bad), ErrInvalidHandle)
		_, err = r.Buffer(bad)
		assert.True(t, errors.IsNotFound(err))
	}
}

func TestMemoryLimit(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, WithMemoryLimit(1000))

	h1, err := r.Create(600, 100)
	require.NoError(t, err)

	_, err = r.Create(600, 100)
	require.ErrorIs(t, err, ErrNoMemory)

	h2, err := r.Create(400, 100)
	require.NoError(t, err)

	require.NoError(t, r.Delete(h1))
	_, err = r.Create(600, 100)
	require.NoError(t, err, "deleted arenas return to the budget")
	require.NoError(t, r.Delete(h2))
}

func TestAllocationFailureIsNoMemory(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	_, err := r.Create(math.MaxInt, 1)
	require.ErrorIs(t, err, ErrNoMemory)
	assert.Zero(t, r.Len())

	h, err := r.Create(64, 32)
	require.NoError(t, err)
	assert.Equal(t, Handle(1), h, "failed create must not consume a slot")
}

func TestRegistryStats(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	h1, err := r.Create(1000, 100)
	require.NoError(t, err)
	h2, err := r.Create(2000, 100)
	require.NoError(t, err)

	_, err = r.AcquireWrite(h2, 0)
	require.NoError(t, err)
	require.NoError(t, r.CommitWrite(h2, 100))

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, h1, stats[0].Handle)
	assert.Equal(t, h2, stats[1].Handle)
	assert.Equal(t, 100, stats[1].Level)
	assert.InDelta(t, 0.05, stats[1].FillRatio, 1e-9)
	assert.Equal(t, 100, stats[1].WriteOffset)

	r.Close()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Stats())
}

func TestProcessWideSwitch(t *testing.T) {
	// The only test that touches the process-wide switch; every other test
	// supplies its own.
	r := NewRegistry(WithPollInterval(time.Millisecond))
	defer r.Close()
	assert.Same(t, DefaultSwitch(), r.Switch())

	h, err := r.Create(1024, 100)
	require.NoError(t, err)

	SetNonblocking()
	assert.True(t, DefaultSwitch().IsSet())

	start := time.Now()
	_, err = r.AcquireRead(h, 5*time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

// gatherValue returns the value of the series name{labels} from reg.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				switch mf.GetType() {
				case dto.MetricType_COUNTER:
					return m.GetCounter().GetValue()
				case dto.MetricType_GAUGE:
					return m.GetGauge().GetValue()
				case dto.MetricType_HISTOGRAM:
					return float64(m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func TestMetricsWiring(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewRingBufferMetrics(reg)
	require.NoError(t, err)

	r := newTestRegistry(t, WithMetrics(m))
	h, err := r.Create(1000, 100)
	require.NoError(t, err)
	_, err = r.Create(10, 100)
	require.Error(t, err)

	for range 3 {
		_, err := r.AcquireWrite(h, 0)
		require.NoError(t, err)
		require.NoError(t, r.CommitWrite(h, 80))
	}
	_, err = r.AcquireRead(h, 0)
	require.NoError(t, err)
	require.NoError(t, r.CommitRead(h, 80))
	require.Error(t, r.CommitRead(h, 101))

	assert.InDelta(t, 1, gatherValue(t, reg, "ringbuffer_creates_total", map[string]string{"status": metrics.StatusSuccess}), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "ringbuffer_creates_total", map[string]string{"status": metrics.StatusInvalidParam}), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "ringbuffer_live_buffers", nil), 0)
	assert.InDelta(t, 240, gatherValue(t, reg, "ringbuffer_commit_bytes_total", map[string]string{"handle": "1", "side": metrics.SideWrite}), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "ringbuffer_commits_total", map[string]string{"handle": "1", "side": metrics.SideRead}), 0)
	assert.InDelta(t, 160, gatherValue(t, reg, "ringbuffer_level_bytes", map[string]string{"handle": "1"}), 0)
	assert.InDelta(t, 0.16, gatherValue(t, reg, "ringbuffer_fill_ratio", map[string]string{"handle": "1"}), 1e-9)
	assert.InDelta(t, 3, gatherValue(t, reg, "ringbuffer_acquire_total", map[string]string{"side": metrics.SideWrite, "status": metrics.StatusSuccess}), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "ringbuffer_invalid_commits_total", map[string]string{"side": metrics.SideRead}), 0)

	require.NoError(t, r.Delete(h))
	assert.InDelta(t, 0, gatherValue(t, reg, "ringbuffer_live_buffers", nil), 0)
}
