package acquisition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpscience/ddrs4pals/internal/conf"
)

// triangleEvent builds traces on a 1 ns grid with a baseline of 10 mV and a
// triangular pulse of height 100 mV starting at the given cell per channel.
// A start cell below zero leaves the channel flat.
func triangleEvent(samples int, negative bool, starts ...int) *Event {
	ev := NewEvent(len(starts), samples)
	for c, start := range starts {
		ch := &ev.Channels[c]
		for i := range samples {
			ch.Time[i] = float32(i)
			shape := 0.0
			if start >= 0 {
				switch d := i - start; {
				case d >= 0 && d <= 10:
					shape = float64(d) * 10
				case d > 10 && d <= 20:
					shape = float64(20-d) * 10
				}
			}
			if negative {
				shape = -shape
			}
			ch.Voltage[i] = float32(10 + shape)
		}
	}
	return ev
}

func calibrationSettings() conf.CalibrationSettings {
	return conf.CalibrationSettings{BaselineCells: 20, CFDLevel: 0.25, Negative: true}
}

func TestNewCalibratorValidates(t *testing.T) {
	t.Parallel()

	_, err := NewCalibrator(conf.CalibrationSettings{BaselineCells: 0, CFDLevel: 0.5}, 100)
	assert.Error(t, err)
	_, err = NewCalibrator(conf.CalibrationSettings{BaselineCells: 100, CFDLevel: 0.5}, 100)
	assert.Error(t, err)
	_, err = NewCalibrator(conf.CalibrationSettings{BaselineCells: 10, CFDLevel: 1}, 100)
	assert.Error(t, err)
	_, err = NewCalibrator(calibrationSettings(), 100)
	assert.NoError(t, err)
}

func TestCalibratePulseParameters(t *testing.T) {
	t.Parallel()

	cal, err := NewCalibrator(calibrationSettings(), 100)
	require.NoError(t, err)

	ev := triangleEvent(100, true, 40, 45)
	ev.Seq = 7
	var out CalibratedEvent
	cal.Calibrate(ev, &out)

	require.Len(t, out.Pulses, 2)
	start := out.Pulses[0]
	assert.True(t, start.Valid)
	assert.InDelta(t, 10, start.Baseline, 1e-6)
	assert.InDelta(t, 100, start.Amplitude, 1e-4)
	assert.InDelta(t, 50, start.PeakTime, 1e-6)
	// 25 % of 100 mV is crossed between cells 42 (20 mV) and 43 (30 mV)
	assert.InDelta(t, 42.5, start.Time, 1e-4)
	assert.InDelta(t, 1000, start.Area, 1e-3)

	assert.True(t, out.Valid)
	assert.Equal(t, uint64(7), out.Seq)
	assert.InDelta(t, 5.0, out.Lifetime, 1e-4)
}

func TestCalibrateAppliesChannelCorrections(t *testing.T) {
	t.Parallel()

	settings := calibrationSettings()
	settings.Channels = []conf.ChannelCalibration{
		{VoltageGain: 2, VoltageOffset: -5},
		{TimeOffset: 1}, // gain 0 means identity
	}
	cal, err := NewCalibrator(settings, 100)
	require.NoError(t, err)

	ev := triangleEvent(100, true, 40, 45)
	var out CalibratedEvent
	cal.Calibrate(ev, &out)

	assert.InDelta(t, 15, out.Pulses[0].Baseline, 1e-4)
	assert.InDelta(t, 200, out.Pulses[0].Amplitude, 1e-3)
	assert.InDelta(t, 42.5, out.Pulses[0].Time, 1e-4)
	assert.InDelta(t, 10, out.Pulses[1].Baseline, 1e-4)
	assert.InDelta(t, 48.5, out.Pulses[1].Time, 1e-4)
	assert.InDelta(t, 6.0, out.Lifetime, 1e-4)
	// corrections are applied to the event in place
	assert.InDelta(t, 15, ev.Channels[0].Voltage[0], 1e-4)
	assert.InDelta(t, 1, ev.Channels[1].Time[0], 1e-6)
}

func TestCalibratePositivePolarity(t *testing.T) {
	t.Parallel()

	settings := calibrationSettings()
	settings.Negative = false
	cal, err := NewCalibrator(settings, 100)
	require.NoError(t, err)

	var out CalibratedEvent
	cal.Calibrate(triangleEvent(100, false, 30, 60), &out)
	assert.True(t, out.Valid)
	assert.InDelta(t, 32.5, out.Pulses[0].Time, 1e-4)
	assert.InDelta(t, 30, out.Lifetime, 1e-4)
}

func TestCalibrateFlatChannelIsInvalid(t *testing.T) {
	t.Parallel()

	cal, err := NewCalibrator(calibrationSettings(), 100)
	require.NoError(t, err)

	var out CalibratedEvent
	cal.Calibrate(triangleEvent(100, true, 40, -1), &out)
	assert.True(t, out.Pulses[0].Valid)
	assert.False(t, out.Pulses[1].Valid)
	assert.False(t, out.Valid)
	assert.Zero(t, out.Lifetime)
}

func TestCalibrateReusesPulses(t *testing.T) {
	t.Parallel()

	cal, err := NewCalibrator(calibrationSettings(), 100)
	require.NoError(t, err)

	out := CalibratedEvent{Pulses: make([]Pulse, 0, 4)}
	backing := out.Pulses[:1]
	cal.Calibrate(triangleEvent(100, true, 40, 45), &out)
	assert.Same(t, &backing[0], &out.Pulses[0])
}
