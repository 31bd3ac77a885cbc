package consumers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// MQTTClientConfig holds configuration for the MQTT consumer.
type MQTTClientConfig struct {
	BrokerURL        string
	ClientIDPrefix   string
	Username         string
	Password         string
	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	ReconnectWaitMax time.Duration
	// TopicPrefix is prepended to a channel name to form its MQTT topic.
	TopicPrefix string
	QoS         byte

	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool

	InputChanCapacity int
}

// MQTTConsumer receives feed messages from an MQTT broker, one topic per channel.
type MQTTConsumer struct {
	cfg    *MQTTClientConfig
	logger zerolog.Logger
	*emitter

	client mqtt.Client

	mu     sync.Mutex
	active map[string]bool // channel -> subscribed

	stopOnce sync.Once
	doneChan chan struct{}
}

// NewMQTTConsumer creates an MQTT consumer. Start connects it.
func NewMQTTConsumer(cfg *MQTTClientConfig, logger zerolog.Logger) (*MQTTConsumer, error) {
	if cfg == nil || cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid MQTT QoS %d", cfg.QoS)
	}
	logger = logger.With().Str("component", "MQTTConsumer").Logger()
	return &MQTTConsumer{
		cfg:      cfg,
		logger:   logger,
		emitter:  newEmitter(cfg.InputChanCapacity, logger),
		active:   make(map[string]bool),
		doneChan: make(chan struct{}),
	}, nil
}

// Messages returns the output channel.
func (c *MQTTConsumer) Messages() <-chan types.FeedMessage {
	return c.out
}

// Done returns a channel that is closed when the consumer has stopped.
func (c *MQTTConsumer) Done() <-chan struct{} {
	return c.doneChan
}

func (c *MQTTConsumer) topic(channel string) string {
	return c.cfg.TopicPrefix + channel
}

// Start connects the Paho client.
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	client, err := c.newClient()
	if err != nil {
		return err
	}
	c.client = client

	if token := c.client.Connect(); token.WaitTimeout(c.cfg.ConnectTimeout) && token.Error() != nil {
		return fmt.Errorf("paho MQTT client connect error: %w", token.Error())
	}
	if !c.client.IsConnected() {
		c.logger.Warn().Msg("Connect() did not error but the client is not connected yet; subscriptions will be made on connect.")
	}
	return nil
}

func (c *MQTTConsumer) newClient() (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL)
	opts.SetClientID(c.cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.cfg.ReconnectWaitMax)
	opts.SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
		c.logger.Info().Str("broker", broker.String()).Msg("Attempting to connect to MQTT broker")
		return tlsCfg
	})

	tlsConfig, err := brokerTLS(c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Warn().Str("topic", msg.Topic()).Msg("Received message on a topic with no handler")
	})
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Error().Err(err).Msg("MQTT connection lost")
	})
	return mqtt.NewClient(opts), nil
}

// onConnect restores the active subscriptions after a (re)connect.
func (c *MQTTConsumer) onConnect(client mqtt.Client) {
	c.logger.Info().Str("broker", c.cfg.BrokerURL).Msg("Connected to MQTT broker")
	c.mu.Lock()
	channels := make([]string, 0, len(c.active))
	for ch := range c.active {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		if err := c.subscribe(client, ch); err != nil {
			c.logger.Error().Err(err).Str("channel", ch).Msg("Failed to restore subscription")
		}
	}
}

func (c *MQTTConsumer) subscribe(client mqtt.Client, channel string) error {
	topic := c.topic(channel)
	token := client.Subscribe(topic, c.cfg.QoS, c.handleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	c.logger.Info().Str("topic", topic).Msg("Subscribed to MQTT topic")
	return nil
}

// Subscribe subscribes to the channel's topic. MQTT has no presence, so
// withPresence is ignored.
func (c *MQTTConsumer) Subscribe(channel string, _ bool) error {
	if c.client == nil {
		return ErrNotStarted
	}
	c.mu.Lock()
	c.active[channel] = true
	c.mu.Unlock()
	return c.subscribe(c.client, channel)
}

// Unsubscribe drops the channel's topic subscription.
func (c *MQTTConsumer) Unsubscribe(channel string) error {
	if c.client == nil {
		return ErrNotStarted
	}
	c.mu.Lock()
	delete(c.active, channel)
	c.mu.Unlock()

	topic := c.topic(channel)
	if token := c.client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, token.Error())
	}
	c.logger.Info().Str("topic", topic).Msg("Unsubscribed from MQTT topic")
	return nil
}

// handleMessage is the Paho message handler.
func (c *MQTTConsumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	channel := strings.TrimPrefix(msg.Topic(), c.cfg.TopicPrefix)
	payload, err := decodePayload(msg.Payload())
	if err != nil {
		c.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Failed to decode MQTT payload")
		return
	}
	c.emit(types.FeedMessage{
		Channel:    channel,
		Kind:       types.KindMessage,
		ID:         fmt.Sprintf("%d", msg.MessageID()),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	})
}

// Stop disconnects the client and closes the message channel.
func (c *MQTTConsumer) Stop() error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MQTT consumer...")
		if c.client != nil && c.client.IsConnected() {
			c.client.Disconnect(250)
		}
		c.shutdown()
		close(c.doneChan)
	})
	return nil
}
