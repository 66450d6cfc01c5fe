package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquisitionRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAcquisitionMetrics(registry)
	require.NoError(t, err)

	var r Recorder = m
	r.RecordOperation(OpProduce, StatusSuccess)
	r.RecordOperation(OpProduce, StatusSuccess)
	r.RecordOperation(OpConsume, StatusTimeout)
	r.RecordError(OpDecode, "validation")
	r.RecordDuration(OpCalibrate, 0.001)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpProduce, StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpConsume, StatusTimeout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errorsTotal.WithLabelValues(OpDecode, "validation")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestAcquisitionObservers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAcquisitionMetrics(registry)
	require.NoError(t, err)

	m.ObserveEventSize(8248)
	m.ObserveLifetime(0.4)
	m.ObserveAmplitude("0", 250)
	m.ObserveAmplitude("1", 120)

	assert.Equal(t, 1, testutil.CollectAndCount(m.eventBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.lifetimeNs))
	assert.Equal(t, 2, testutil.CollectAndCount(m.pulseAmplitude))
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	assert.NotPanics(t, func() {
		r.RecordOperation(OpForward, StatusError)
		r.RecordDuration(OpForward, 1)
		r.RecordError(OpForward, "network")
	})
}
