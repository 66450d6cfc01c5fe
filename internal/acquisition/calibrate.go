package acquisition

import (
	"math"
	"slices"
	"time"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
)

// Pulse summarizes one calibrated channel trace.
type Pulse struct {
	Baseline  float64 `json:"baseline"`  // mV, median of the leading cells
	Amplitude float64 `json:"amplitude"` // mV, height above baseline (positive for either polarity)
	PeakTime  float64 `json:"peak_time"` // ns
	Time      float64 `json:"time"`      // ns, constant fraction crossing
	Area      float64 `json:"area"`      // mV*ns
	Valid     bool    `json:"valid"`
}

// CalibratedEvent is what the consumer forwards.
type CalibratedEvent struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Pulses    []Pulse   `json:"pulses"`
	Lifetime  float64   `json:"lifetime"` // ns, stop minus start, valid only when both pulses are
	Valid     bool      `json:"valid"`
}

// Calibrator applies per-channel voltage and time corrections and extracts
// pulse parameters. It keeps scratch space and must not be shared between goroutines.
type Calibrator struct {
	settings conf.CalibrationSettings
	scratch  []float64
}

// NewCalibrator returns a calibrator for traces of the given length.
func NewCalibrator(settings conf.CalibrationSettings, samples int) (*Calibrator, error) {
	if settings.BaselineCells <= 0 || settings.BaselineCells >= samples {
		return nil, errors.Newf("baseline cells %d must be between 1 and %d", settings.BaselineCells, samples-1).
			Component("acquisition").
			Category(errors.CategoryCalibration).
			Build()
	}
	if settings.CFDLevel <= 0 || settings.CFDLevel >= 1 {
		return nil, errors.Newf("cfd level %g must be between 0 and 1", settings.CFDLevel).
			Component("acquisition").
			Category(errors.CategoryCalibration).
			Build()
	}
	return &Calibrator{
		settings: settings,
		scratch:  make([]float64, settings.BaselineCells),
	}, nil
}

func (c *Calibrator) channel(i int) conf.ChannelCalibration {
	if i < len(c.settings.Channels) {
		cc := c.settings.Channels[i]
		if cc.VoltageGain == 0 {
			cc.VoltageGain = 1
		}
		return cc
	}
	return conf.ChannelCalibration{VoltageGain: 1}
}

// Calibrate corrects ev in place and fills out. out.Pulses is reused when large enough.
func (c *Calibrator) Calibrate(ev *Event, out *CalibratedEvent) {
	out.Seq = ev.Seq
	out.Timestamp = ev.Timestamp
	if cap(out.Pulses) < len(ev.Channels) {
		out.Pulses = make([]Pulse, len(ev.Channels))
	}
	out.Pulses = out.Pulses[:len(ev.Channels)]

	for i := range ev.Channels {
		ch := &ev.Channels[i]
		cc := c.channel(i)
		for j := range ev.Samples {
			ch.Voltage[j] = float32(float64(ch.Voltage[j])*cc.VoltageGain + cc.VoltageOffset)
			ch.Time[j] = float32(float64(ch.Time[j]) + cc.TimeOffset)
		}
		out.Pulses[i] = c.analyze(ch, ev.Samples)
	}

	out.Valid = len(out.Pulses) >= 2 && out.Pulses[0].Valid && out.Pulses[1].Valid
	out.Lifetime = 0
	if out.Valid {
		out.Lifetime = out.Pulses[1].Time - out.Pulses[0].Time
	}
}

// signal returns the trace value at j with baseline removed and polarity
// folded so that pulses are positive.
func (c *Calibrator) signal(ch *Channel, j int, baseline float64) float64 {
	v := float64(ch.Voltage[j]) - baseline
	if c.settings.Negative {
		return -v
	}
	return v
}

func (c *Calibrator) analyze(ch *Channel, samples int) Pulse {
	n := c.settings.BaselineCells
	for j := range n {
		c.scratch[j] = float64(ch.Voltage[j])
	}
	slices.Sort(c.scratch)
	baseline := c.scratch[n/2]
	if n%2 == 0 {
		baseline = (c.scratch[n/2-1] + c.scratch[n/2]) / 2
	}

	p := Pulse{Baseline: baseline}
	peak := 0
	peakVal := math.Inf(-1)
	for j := range samples {
		s := c.signal(ch, j, baseline)
		if s > peakVal {
			peak, peakVal = j, s
		}
		if j > 0 {
			p.Area += s * float64(ch.Time[j]-ch.Time[j-1])
		}
	}
	p.Amplitude = peakVal
	p.PeakTime = float64(ch.Time[peak])
	if peakVal <= 0 || peak == 0 {
		return p
	}

	// walk back from the peak to the constant fraction crossing
	threshold := c.settings.CFDLevel * peakVal
	for j := peak; j > 0; j-- {
		hi := c.signal(ch, j, baseline)
		lo := c.signal(ch, j-1, baseline)
		if lo < threshold && hi >= threshold {
			t0, t1 := float64(ch.Time[j-1]), float64(ch.Time[j])
			p.Time = t0 + (threshold-lo)/(hi-lo)*(t1-t0)
			p.Valid = true
			break
		}
	}
	return p
}
