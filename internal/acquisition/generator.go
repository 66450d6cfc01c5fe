package acquisition

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
)

// Source fills events with digitized traces. The DRS4 board wrapper and the
// simulated PulseGenerator both implement it.
type Source interface {
	// Next overwrites ev with the next triggered sweep.
	Next(ev *Event) error
	// Channels returns the number of channels per event.
	Channels() int
	// Samples returns the number of cells per channel.
	Samples() int
}

// PulseGenerator simulates a two detector PALS setup: a 1274 keV start pulse on
// channel 0 and a 511 keV stop pulse on channel 1, delayed by an exponentially
// distributed positron lifetime. Pulses have a log-normal shape on a Gaussian
// noise baseline. Extra channels carry noise only.
type PulseGenerator struct {
	channels    int
	samples     int
	sampleSpeed float64 // GHz
	sim         conf.SimulationSettings
	cumulative  []float64 // cumulative normalized intensities
	rng         *rand.Rand
	seq         uint64
	now         func() time.Time
}

// NewPulseGenerator validates the settings and returns a generator.
func NewPulseGenerator(acq *conf.AcquisitionSettings) (*PulseGenerator, error) {
	if acq.Channels < 1 || acq.Channels > MaxChannels {
		return nil, errors.Newf("simulation needs 1..%d channels, got %d", MaxChannels, acq.Channels).
			Component("acquisition").
			Category(errors.CategoryValidation).
			Build()
	}
	if acq.Samples < 2 || acq.SampleSpeed <= 0 {
		return nil, errors.Newf("invalid sweep geometry: %d samples at %.3f GHz", acq.Samples, acq.SampleSpeed).
			Component("acquisition").
			Category(errors.CategoryValidation).
			Build()
	}

	sim := acq.Simulation
	total := 0.0
	for _, lt := range sim.Lifetimes {
		if lt.Tau <= 0 || lt.Intensity < 0 {
			return nil, errors.Newf("invalid lifetime component tau=%g intensity=%g", lt.Tau, lt.Intensity).
				Component("acquisition").
				Category(errors.CategoryValidation).
				Build()
		}
		total += lt.Intensity
	}
	if total <= 0 {
		return nil, errors.Newf("simulation needs at least one lifetime component with positive intensity").
			Component("acquisition").
			Category(errors.CategoryValidation).
			Build()
	}
	cumulative := make([]float64, len(sim.Lifetimes))
	acc := 0.0
	for i, lt := range sim.Lifetimes {
		acc += lt.Intensity / total
		cumulative[i] = acc
	}

	seed := uint64(sim.Seed)
	if sim.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &PulseGenerator{
		channels:    acq.Channels,
		samples:     acq.Samples,
		sampleSpeed: acq.SampleSpeed,
		sim:         sim,
		cumulative:  cumulative,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:         time.Now,
	}, nil
}

// Channels implements Source.
func (g *PulseGenerator) Channels() int { return g.channels }

// Samples implements Source.
func (g *PulseGenerator) Samples() int { return g.samples }

// Sweep returns the recorded time window in ns.
func (g *PulseGenerator) Sweep() float64 {
	return float64(g.samples) / g.sampleSpeed
}

// Next implements Source.
func (g *PulseGenerator) Next(ev *Event) error {
	if len(ev.Channels) != g.channels || ev.Samples != g.samples {
		return errors.Newf("event geometry %dx%d does not match source %dx%d",
			len(ev.Channels), ev.Samples, g.channels, g.samples).
			Component("acquisition").
			Category(errors.CategoryValidation).
			Build()
	}

	g.seq++
	ev.Seq = g.seq
	ev.Timestamp = g.now()

	start := g.sim.TriggerDelay + g.rng.NormFloat64()*g.sim.ArrivalTimeSpread
	stop := start + g.lifetime() + g.rng.NormFloat64()*g.sim.TimingResolution

	for c := range ev.Channels {
		switch c {
		case 0:
			g.trace(&ev.Channels[c], start, g.amplitude(g.sim.StartAmplitude))
		case 1:
			g.trace(&ev.Channels[c], stop, g.amplitude(g.sim.StopAmplitude))
		default:
			g.trace(&ev.Channels[c], 0, 0)
		}
	}
	return nil
}

// lifetime draws a positron lifetime in ns from the component mixture.
func (g *PulseGenerator) lifetime() float64 {
	u := g.rng.Float64()
	for i, c := range g.cumulative {
		if u <= c {
			return g.rng.ExpFloat64() * g.sim.Lifetimes[i].Tau
		}
	}
	return g.rng.ExpFloat64() * g.sim.Lifetimes[len(g.sim.Lifetimes)-1].Tau
}

func (g *PulseGenerator) amplitude(mean float64) float64 {
	a := mean * (1 + g.rng.NormFloat64()*g.sim.AmplitudeSigma)
	return math.Max(a, 0)
}

// trace writes a negative log-normal pulse starting at t0 with peak height
// amp onto a noisy baseline. amp 0 yields noise only.
func (g *PulseGenerator) trace(ch *Channel, t0, amp float64) {
	dt := 1 / g.sampleSpeed
	rise := g.sim.RiseTime
	width := g.sim.PulseWidth
	for i := range g.samples {
		t := float64(i) * dt
		v := g.rng.NormFloat64() * g.sim.Noise
		if amp > 0 && t > t0 && rise > 0 && width > 0 {
			x := math.Log((t-t0)/rise) / width
			v -= amp * math.Exp(-0.5*x*x)
		}
		ch.Time[i] = float32(t)
		ch.Voltage[i] = float32(v)
	}
}
