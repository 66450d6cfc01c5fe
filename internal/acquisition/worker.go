// worker.go: producer and consumer loops connected by one ring buffer.
package acquisition

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/forward"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
	"github.com/dpscience/ddrs4pals/internal/ringbuffer"
)

// flushTimeout bounds the final frame send after the run context is done.
const flushTimeout = 2 * time.Second

// Frame is the JSON document forwarded to the sink.
type Frame struct {
	Run    string            `json:"run"`
	Node   string            `json:"node,omitempty"`
	Events []CalibratedEvent `json:"events"`
}

// Stats counts what a worker has moved so far.
type Stats struct {
	Produced      uint64 `json:"produced"`
	Consumed      uint64 `json:"consumed"`
	Invalid       uint64 `json:"invalid"`
	Forwarded     uint64 `json:"forwarded"`
	Dropped       uint64 `json:"dropped"`
	Frames        uint64 `json:"frames"`
	WriteTimeouts uint64 `json:"write_timeouts"`
	ReadTimeouts  uint64 `json:"read_timeouts"`
}

type counters struct {
	produced, consumed, invalid, forwarded, dropped, frames atomic.Uint64
	writeTimeouts, readTimeouts                             atomic.Uint64
}

// Worker runs one acquisition pipeline: a producer goroutine that reads
// events from a Source into a ring buffer and a consumer goroutine that
// decodes, calibrates and forwards them in batches.
type Worker struct {
	registry *ringbuffer.Registry
	buf      *ringbuffer.Buffer
	source   Source
	cal      *Calibrator
	sink     forward.Sink
	codec    forward.Codec

	runID        string
	node         string
	timeout      time.Duration
	maxEvents    uint64
	batchSize    int
	lockOSThread bool
	limiter      *rate.Limiter

	recorder metrics.Recorder
	acqm     *metrics.AcquisitionMetrics
	fwdm     *metrics.ForwardMetrics
	channels []string

	producerDone atomic.Bool
	stats        counters
	log          logger.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithRunID overrides the generated run id.
func WithRunID(id string) WorkerOption {
	return func(w *Worker) { w.runID = id }
}

// WithCodec sets the frame compression.
func WithCodec(c forward.Codec) WorkerOption {
	return func(w *Worker) { w.codec = c }
}

// WithAcquisitionMetrics records loop outcomes and pulse histograms.
func WithAcquisitionMetrics(m *metrics.AcquisitionMetrics) WorkerOption {
	return func(w *Worker) {
		if m != nil {
			w.acqm = m
			w.recorder = m
		}
	}
}

// WithRecorder records loop outcomes through r.
func WithRecorder(r metrics.Recorder) WorkerOption {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// WithForwardMetrics records frame compression ratios.
func WithForwardMetrics(m *metrics.ForwardMetrics) WorkerOption {
	return func(w *Worker) { w.fwdm = m }
}

// MaxEventSize returns the ring buffer event bound for settings: the encoded
// size of one event, or the configured bound when it is larger.
func MaxEventSize(settings *conf.Settings) (int, error) {
	need := EventSize(settings.Acquisition.Channels, settings.Acquisition.Samples)
	configured := settings.RingBuffer.MaxEventSize
	if configured == 0 {
		return need, nil
	}
	if configured < need {
		return 0, errors.Newf("ringbuffer.maxeventsize %d is smaller than one event of %d bytes", configured, need).
			Component("acquisition").
			Category(errors.CategoryConfiguration).
			Context("channels", settings.Acquisition.Channels).
			Context("samples", settings.Acquisition.Samples).
			Build()
	}
	return configured, nil
}

// NewWorker creates the ring buffer for the pipeline in registry.
func NewWorker(settings *conf.Settings, registry *ringbuffer.Registry, source Source, sink forward.Sink, opts ...WorkerOption) (*Worker, error) {
	acq := &settings.Acquisition
	if source.Channels() != acq.Channels || source.Samples() != acq.Samples {
		return nil, errors.Newf("source geometry %dx%d does not match settings %dx%d",
			source.Channels(), source.Samples(), acq.Channels, acq.Samples).
			Component("acquisition").
			Category(errors.CategoryValidation).
			Build()
	}
	maxEvent, err := MaxEventSize(settings)
	if err != nil {
		return nil, err
	}
	cal, err := NewCalibrator(acq.Calibration, acq.Samples)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		registry:     registry,
		source:       source,
		cal:          cal,
		sink:         sink,
		runID:        uuid.NewString(),
		node:         settings.Main.Name,
		timeout:      acq.AcquireTimeout,
		maxEvents:    acq.MaxEvents,
		batchSize:    max(settings.Forward.BatchSize, 1),
		lockOSThread: acq.LockOSThread,
		recorder:     metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if acq.EventRate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(acq.EventRate), 1)
	}
	w.channels = make([]string, acq.Channels)
	for i := range w.channels {
		w.channels[i] = strconv.Itoa(i)
	}
	w.log = GetLogger().With(logger.String("run_id", w.runID))

	h, err := registry.Create(settings.RingBuffer.Capacity, maxEvent)
	if err != nil {
		return nil, err
	}
	w.buf, err = registry.Buffer(h)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// RunID identifies this pipeline in frames and logs.
func (w *Worker) RunID() string { return w.runID }

// Handle returns the ring buffer handle of the pipeline.
func (w *Worker) Handle() ringbuffer.Handle { return w.buf.Handle() }

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Produced:      w.stats.produced.Load(),
		Consumed:      w.stats.consumed.Load(),
		Invalid:       w.stats.invalid.Load(),
		Forwarded:     w.stats.forwarded.Load(),
		Dropped:       w.stats.dropped.Load(),
		Frames:        w.stats.frames.Load(),
		WriteTimeouts: w.stats.writeTimeouts.Load(),
		ReadTimeouts:  w.stats.readTimeouts.Load(),
	}
}

// Run starts both loops and blocks until they return. The loops end when
// the producer reached its event limit and the consumer drained the buffer,
// when ctx is done, or when the registry switch is set. The first loop error
// cancels the other loop and is returned.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("acquisition run starting",
		logger.Int("handle", int(w.buf.Handle())),
		logger.Int("capacity", w.buf.Capacity()),
		logger.Int("max_event_size", w.buf.MaxEventSize()),
		logger.Uint64("max_events", w.maxEvents))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer w.producerDone.Store(true)
		return w.produce(gctx)
	})
	g.Go(func() error {
		return w.consume(gctx)
	})
	err := g.Wait()

	st := w.Stats()
	elapsed := time.Since(start)
	w.log.Info("acquisition run finished",
		logger.Uint64("produced", st.Produced),
		logger.Uint64("consumed", st.Consumed),
		logger.Uint64("forwarded", st.Forwarded),
		logger.Uint64("dropped", st.Dropped),
		logger.Uint64("write_timeouts", st.WriteTimeouts),
		logger.Uint64("read_timeouts", st.ReadTimeouts),
		logger.Duration("elapsed", elapsed),
		logger.Error(err))
	return err
}

// Stop sets the registry switch so that blocked loops return immediately.
// It does not wait; Run returns once both loops noticed.
func (w *Worker) Stop() {
	w.registry.Switch().Set()
}

// Close deletes the ring buffer. Call it after Run returned.
func (w *Worker) Close() error {
	return w.registry.Delete(w.buf.Handle())
}

func (w *Worker) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || w.registry.Switch().IsSet()
}

func (w *Worker) produce(ctx context.Context) error {
	if w.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	ev := NewEvent(w.source.Channels(), w.source.Samples())
	for {
		if w.maxEvents > 0 && w.stats.produced.Load() >= w.maxEvents {
			return nil
		}
		if w.stopping(ctx) {
			return nil
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		if err := w.source.Next(ev); err != nil {
			w.recorder.RecordError(metrics.OpProduce, "source")
			return errors.New(err).
				Component("acquisition").
				Category(errors.CategoryAcquisition).
				Build()
		}

		region, ok, err := w.acquireWrite(ctx)
		if err != nil || !ok {
			return err
		}

		n, err := EncodeEvent(w.buf.Bytes(region), ev)
		if err != nil {
			w.recorder.RecordError(metrics.OpEncode, "encoding")
			return err
		}
		if err := w.buf.CommitWrite(n); err != nil {
			return err
		}
		w.stats.produced.Add(1)
		w.recorder.RecordOperation(metrics.OpProduce, metrics.StatusSuccess)
		w.acqm.ObserveEventSize(n)
	}
}

// acquireWrite retries timeouts until a region is free. ok is false when the
// pipeline is stopping.
func (w *Worker) acquireWrite(ctx context.Context) (ringbuffer.Region, bool, error) {
	for {
		region, err := w.buf.AcquireWriteContext(ctx, w.timeout)
		switch {
		case err == nil:
			return region, true, nil
		case errors.Is(err, ringbuffer.ErrTimeout):
			w.stats.writeTimeouts.Add(1)
			w.recorder.RecordOperation(metrics.OpProduce, metrics.StatusTimeout)
			if w.stopping(ctx) {
				return ringbuffer.Region{}, false, nil
			}
			// zero timeout means the caller polls; yield before retrying
			if w.timeout <= 0 {
				runtime.Gosched()
			}
		case ctx.Err() != nil:
			return ringbuffer.Region{}, false, nil
		default:
			return ringbuffer.Region{}, false, err
		}
	}
}

func (w *Worker) consume(ctx context.Context) error {
	if w.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	ev := NewEvent(w.source.Channels(), w.source.Samples())
	batch := make([]CalibratedEvent, w.batchSize)
	n := 0
	var frameBuf []byte

	flush := func(ctx context.Context) {
		if n == 0 {
			return
		}
		frameBuf = w.sendFrame(ctx, batch[:n], frameBuf)
		n = 0
	}
	finish := func() error {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		flush(fctx)
		return nil
	}

	for {
		region, err := w.buf.AcquireReadContext(ctx, w.timeout)
		if err != nil {
			if !errors.Is(err, ringbuffer.ErrTimeout) {
				if ctx.Err() != nil {
					return finish()
				}
				return err
			}
			w.stats.readTimeouts.Add(1)
			w.recorder.RecordOperation(metrics.OpConsume, metrics.StatusTimeout)
			flush(ctx)
			// after a stop the producer returns at its next check; keep
			// draining until it did so nothing committed is left behind
			if ctx.Err() != nil || (w.producerDone.Load() && w.buf.Level() == 0) {
				return finish()
			}
			if w.timeout <= 0 || w.registry.Switch().IsSet() {
				runtime.Gosched()
			}
			continue
		}

		size, err := DecodeEvent(w.buf.Bytes(region), ev)
		if err != nil {
			w.recorder.RecordError(metrics.OpDecode, "encoding")
			return err
		}
		start := time.Now()
		w.cal.Calibrate(ev, &batch[n])
		w.recorder.RecordDuration(metrics.OpCalibrate, time.Since(start).Seconds())
		if err := w.buf.CommitRead(size); err != nil {
			return err
		}

		w.stats.consumed.Add(1)
		w.recorder.RecordOperation(metrics.OpConsume, metrics.StatusSuccess)
		w.observe(&batch[n])
		n++
		if n == len(batch) {
			flush(ctx)
		}
	}
}

func (w *Worker) observe(ce *CalibratedEvent) {
	if !ce.Valid {
		w.stats.invalid.Add(1)
		return
	}
	if w.acqm == nil {
		return
	}
	w.acqm.ObserveLifetime(ce.Lifetime)
	for i, p := range ce.Pulses {
		if p.Valid {
			w.acqm.ObserveAmplitude(w.channels[i], p.Amplitude)
		}
	}
}

// sendFrame encodes events into one frame and hands it to the sink. Failed
// sends are counted as dropped events; the pipeline keeps running.
func (w *Worker) sendFrame(ctx context.Context, events []CalibratedEvent, buf []byte) []byte {
	raw, err := json.Marshal(Frame{Run: w.runID, Node: w.node, Events: events})
	if err != nil {
		w.recorder.RecordError(metrics.OpEncode, "json")
		w.stats.dropped.Add(uint64(len(events)))
		w.log.Error("failed to encode frame", logger.Error(err))
		return buf
	}
	buf = w.codec.Encode(buf[:0], raw)
	if w.codec.Compressed() {
		w.fwdm.ObserveCompressionRatio(len(raw), len(buf))
	}

	start := time.Now()
	err = w.sink.Send(ctx, buf)
	w.recorder.RecordDuration(metrics.OpForward, time.Since(start).Seconds())
	if err != nil {
		w.stats.dropped.Add(uint64(len(events)))
		w.recorder.RecordOperation(metrics.OpForward, metrics.StatusError)
		w.log.Warn("failed to forward frame",
			logger.String("sink", w.sink.Name()),
			logger.Int("events", len(events)),
			logger.Error(err))
		return buf
	}
	w.stats.forwarded.Add(uint64(len(events)))
	w.stats.frames.Add(1)
	w.recorder.RecordOperation(metrics.OpForward, metrics.StatusSuccess)
	return buf
}
