// sink.go: destinations for calibrated event frames produced by the consumer.
package forward

import (
	"context"
	"os"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

// Sink receives encoded frames. Send is called from a single consumer
// goroutine; Close may be called from another one after the consumer stopped.
type Sink interface {
	// Name identifies the sink in logs and metric labels.
	Name() string
	// Send delivers one frame. The frame is only valid during the call.
	Send(ctx context.Context, frame []byte) error
	// Close flushes and releases the sink.
	Close() error
}

// Options carries what the sinks need besides their own settings section.
type Options struct {
	Codec   Codec
	Header  StreamHeader
	RunID   string
	Node    string
	Metrics *metrics.ForwardMetrics
}

// New builds the sink selected by settings.Forward.Sink and wraps it with
// metrics recording.
func New(ctx context.Context, settings *conf.Settings, opts Options) (Sink, error) {
	fs := &settings.Forward

	var (
		sink Sink
		err  error
	)
	switch fs.Sink {
	case conf.SinkWriter:
		sink, err = newFileSink(fs.Path, opts)
	case conf.SinkMemory:
		sink, err = NewMemorySink(fs.MemorySize)
	case conf.SinkMQTT:
		sink, err = NewMQTTSink(ctx, &fs.MQTT, opts)
	case conf.SinkKafka:
		sink, err = NewKafkaSink(&fs.Kafka, opts)
	default:
		err = errors.Newf("unknown sink %q", fs.Sink).
			Component("forward").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	GetLogger().Info("forward sink ready",
		logger.String("sink", sink.Name()),
		logger.String("content_type", opts.Codec.ContentType()))
	return Instrument(sink, opts.Metrics), nil
}

func newFileSink(path string, opts Options) (Sink, error) {
	if path == "-" {
		return NewWriterSink(nopCloser{os.Stdout}, opts.Header)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.New(err).
			Component("forward").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	sink, err := NewWriterSink(f, opts.Header)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return sink, nil
}

// instrumented records delivery metrics around another sink.
type instrumented struct {
	Sink
	metrics *metrics.ForwardMetrics
}

// Instrument wraps sink so every Send is timed and counted. A nil metrics
// returns sink unchanged.
func Instrument(sink Sink, m *metrics.ForwardMetrics) Sink {
	if m == nil {
		return sink
	}
	return &instrumented{Sink: sink, metrics: m}
}

func (s *instrumented) Send(ctx context.Context, frame []byte) error {
	name := s.Name()
	timer := s.metrics.StartPublishTimer(name)
	err := s.Sink.Send(ctx, frame)
	timer.ObserveDuration()
	if err != nil {
		s.metrics.IncrementErrors(name)
		return err
	}
	s.metrics.IncrementMessagesDelivered(name)
	s.metrics.ObserveMessageSize(name, len(frame))
	return nil
}
