package forward

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

const (
	defaultMQTTTimeout = 10 * time.Second
	disconnectQuiesce  = 250 // ms
)

// brokerClient is the subset of the paho client the sink uses.
type brokerClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes every frame to one topic.
type MQTTSink struct {
	settings conf.MQTTSettings
	clientID string
	metrics  *metrics.ForwardMetrics

	mu     sync.Mutex
	client brokerClient
}

// NewMQTTSink resolves the broker, connects and returns the sink. The paho
// client reconnects on its own after a lost connection.
func NewMQTTSink(ctx context.Context, settings *conf.MQTTSettings, opts Options) (*MQTTSink, error) {
	s := &MQTTSink{
		settings: *settings,
		clientID: mqttClientID(opts),
		metrics:  opts.Metrics,
	}
	if s.settings.Timeout <= 0 {
		s.settings.Timeout = defaultMQTTTimeout
	}
	if err := resolveBroker(ctx, s.settings.Broker); err != nil {
		return nil, err
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(s.settings.Broker)
	co.SetClientID(s.clientID)
	co.SetUsername(s.settings.Username)
	co.SetPassword(s.settings.Password)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(s.settings.Timeout)
	co.SetOnConnectHandler(func(mqtt.Client) { s.onConnect() })
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) { s.onConnectionLost(err) })
	co.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		s.metrics.IncrementReconnectAttempts(conf.SinkMQTT)
	})

	if err := s.connect(mqtt.NewClient(co)); err != nil {
		return nil, err
	}
	return s, nil
}

func mqttClientID(opts Options) string {
	node := opts.Node
	if node == "" {
		node = "ddrs4pals"
	}
	if opts.RunID != "" {
		return node + "-" + opts.RunID
	}
	return node + "-" + uuid.NewString()
}

// resolveBroker fails early on a broker host that does not resolve.
func resolveBroker(ctx context.Context, broker string) error {
	u, err := url.Parse(broker)
	if err != nil {
		return errors.New(err).
			Component("forward").
			Category(errors.CategoryConfiguration).
			Context("broker", broker).
			Build()
	}
	host := u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return nil
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return errors.New(err).
			Component("forward").
			Category(errors.CategoryMQTT).
			NetworkContext(broker, 0).
			Build()
	}
	return nil
}

func (s *MQTTSink) connect(c brokerClient) error {
	token := c.Connect()
	if !token.WaitTimeout(s.settings.Timeout) {
		return errors.Newf("mqtt connect to %s timed out", s.settings.Broker).
			Component("forward").
			Category(errors.CategoryTimeout).
			NetworkContext(s.settings.Broker, s.settings.Timeout).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("forward").
			Category(errors.CategoryMQTT).
			NetworkContext(s.settings.Broker, s.settings.Timeout).
			Build()
	}
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	s.metrics.UpdateConnectionStatus(conf.SinkMQTT, true)
	return nil
}

func (s *MQTTSink) onConnect() {
	GetLogger().Info("connected to MQTT broker",
		logger.String("broker", logger.RedactSensitiveData(s.settings.Broker)),
		logger.String("client_id", s.clientID))
	s.metrics.UpdateConnectionStatus(conf.SinkMQTT, true)
}

func (s *MQTTSink) onConnectionLost(err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", logger.RedactSensitiveData(s.settings.Broker)),
		logger.Error(err))
	s.metrics.UpdateConnectionStatus(conf.SinkMQTT, false)
	s.metrics.IncrementErrors(conf.SinkMQTT)
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return conf.SinkMQTT }

// Send implements Sink. Frames sent while the client is reconnecting fail
// and are counted as dropped by the caller.
func (s *MQTTSink) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return ErrSinkClosed
	}
	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker %s", s.settings.Broker).
			Component("forward").
			Category(errors.CategoryMQTT).
			Build()
	}

	// paho may hold on to the payload after Publish returns
	payload := make([]byte, len(frame))
	copy(payload, frame)

	token := c.Publish(s.settings.Topic, s.settings.QoS, s.settings.Retain, payload)
	timer := time.NewTimer(s.settings.Timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return errors.Newf("mqtt publish to %s timed out", s.settings.Topic).
			Component("forward").
			Category(errors.CategoryTimeout).
			NetworkContext(s.settings.Broker, s.settings.Timeout).
			Build()
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("forward").
			Category(errors.CategoryMQTT).
			Context("topic", s.settings.Topic).
			Build()
	}
	return nil
}

// Close implements Sink.
func (s *MQTTSink) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	if c.IsConnected() {
		c.Disconnect(disconnectQuiesce)
	}
	s.metrics.UpdateConnectionStatus(conf.SinkMQTT, false)
	return nil
}
