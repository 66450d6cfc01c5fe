package forward

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
)

// CloudEvent attributes of forwarded frames.
const (
	EventTypeFrame   = "org.dpscience.ddrs4pals.frame.v1"
	eventSourceBase  = "ddrs4pals/"
	extensionRunID   = "runid"
	extensionFrameNo = "frameno"
)

// KafkaSink wraps every frame into a CloudEvent and sends it with a sarama
// SyncProducer.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	source   string
	runID    string
	codec    Codec
	frames   atomic.Uint64
}

// NewKafkaSink connects a sync producer to the configured brokers.
func NewKafkaSink(settings *conf.KafkaSettings, opts Options) (*KafkaSink, error) {
	sc := sarama.NewConfig()
	sc.ClientID = settings.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	// frames are compressed by the codec when requested
	sc.Producer.Compression = sarama.CompressionNone

	producer, err := sarama.NewSyncProducer(settings.Brokers, sc)
	if err != nil {
		return nil, errors.New(err).
			Component("forward").
			Category(errors.CategoryKafka).
			Context("brokers", settings.Brokers).
			Build()
	}

	GetLogger().Info("kafka producer created",
		logger.Any("brokers", settings.Brokers),
		logger.String("topic", settings.Topic))
	return newKafkaSink(producer, settings.Topic, opts), nil
}

func newKafkaSink(producer sarama.SyncProducer, topic string, opts Options) *KafkaSink {
	node := opts.Node
	if node == "" {
		node = "ddrs4pals"
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		source:   eventSourceBase + node,
		runID:    opts.RunID,
		codec:    opts.Codec,
	}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return conf.SinkKafka }

func (s *KafkaSink) event(frame []byte) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetSpecVersion(cloudevents.VersionV1)
	event.SetID(uuid.NewString())
	event.SetType(EventTypeFrame)
	event.SetSource(s.source)
	event.SetTime(time.Now())
	if s.runID != "" {
		event.SetExtension(extensionRunID, s.runID)
	}
	event.SetExtension(extensionFrameNo, strconv.FormatUint(s.frames.Add(1), 10))
	// JSON frames are embedded as data, compressed ones travel as data_base64
	var data any = frame
	if !s.codec.Compressed() {
		data = json.RawMessage(frame)
	}
	err := event.SetData(s.codec.ContentType(), data)
	return event, err
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event, err := s.event(frame)
	if err != nil {
		return s.sendError(err)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return s.sendError(err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.ID()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(event.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(event.Type())},
			{Key: []byte("ce_source"), Value: []byte(event.Source())},
			{Key: []byte("ce_id"), Value: []byte(event.ID())},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return s.sendError(err)
	}
	GetLogger().Trace("frame sent to kafka",
		logger.String("topic", s.topic),
		logger.Int("partition", int(partition)),
		logger.Int64("offset", offset),
		logger.String("event_id", event.ID()))
	return nil
}

func (s *KafkaSink) sendError(err error) error {
	return errors.New(err).
		Component("forward").
		Category(errors.CategoryKafka).
		Context("topic", s.topic).
		Build()
}

// Close implements Sink.
func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}
	if err := s.producer.Close(); err != nil {
		return s.sendError(err)
	}
	return nil
}
