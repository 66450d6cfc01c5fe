package bench

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunFixedSize(t *testing.T) {
	opts := Options{Events: 5000, Size: 256, Capacity: 4096, Timeout: 50 * time.Millisecond}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, uint64(5000), res.Events)
	assert.Equal(t, uint64(5000*256), res.Bytes)
	assert.Positive(t, res.Elapsed)
	assert.Positive(t, res.EventsPerSecond())
	// 5000 records through 16 slots wrap many times
	assert.Positive(t, res.WriteWraps)
	assert.Positive(t, res.ReadWraps)
}

func TestRunVariableSize(t *testing.T) {
	opts := Options{Events: 3000, Size: 300, Capacity: 1000, Timeout: 50 * time.Millisecond, Variable: true, Seed: 7}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, uint64(3000), res.Events)
	assert.GreaterOrEqual(t, res.Bytes, uint64(3000*recordHeader))
	assert.LessOrEqual(t, res.Bytes, uint64(3000*300))
}

func TestRunZeroTimeout(t *testing.T) {
	res, err := Run(context.Background(), Options{Events: 1000, Size: 64, Capacity: 256})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.Events)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Events: 1 << 40, Size: 64, Capacity: 256, Timeout: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no events", Options{Size: 64, Capacity: 256}},
		{"record smaller than header", Options{Events: 1, Size: 4, Capacity: 256}},
		{"capacity below two records", Options{Events: 1, Size: 200, Capacity: 256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	Print(&out, Options{Size: 128, Capacity: 4096, Variable: true},
		Result{Events: 1000, Bytes: 128000, Elapsed: time.Second, WriteTimeouts: 2, ReadTimeouts: 3})

	s := out.String()
	assert.Contains(t, s, "1000 (up to 128 bytes)")
	assert.Contains(t, s, "1000 records/s, 0.1 MB/s")
	assert.Contains(t, s, "2 write, 3 read")
}
