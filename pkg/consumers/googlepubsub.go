package consumers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// --- Google Cloud Pub/Sub Consumer Implementation ---

// GooglePubSubConsumerConfig holds configuration for the Pub/Sub consumer.
type GooglePubSubConsumerConfig struct {
	ProjectID       string
	CredentialsFile string // Optional
	// SubscriptionPrefix is prepended to a channel name to form its subscription ID.
	SubscriptionPrefix     string
	MaxOutstandingMessages int
	NumGoroutines          int
	InputChanCapacity      int
}

// receiver is one running Subscription.Receive.
type receiver struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// GooglePubSubConsumer receives feed messages from Google Cloud Pub/Sub. Each
// channel maps to one subscription; subscribing starts a Receive call and
// unsubscribing cancels it.
type GooglePubSubConsumer struct {
	client *pubsub.Client
	cfg    *GooglePubSubConsumerConfig
	logger zerolog.Logger
	*emitter

	mu        sync.Mutex
	parentCtx context.Context
	receivers map[string]*receiver

	stopOnce sync.Once
	doneChan chan struct{}
}

// NewGooglePubSubConsumer creates a Pub/Sub client. PUBSUB_EMULATOR_HOST is honoured.
func NewGooglePubSubConsumer(ctx context.Context, cfg *GooglePubSubConsumerConfig, logger zerolog.Logger) (*GooglePubSubConsumer, error) {
	if cfg == nil || cfg.ProjectID == "" {
		return nil, errors.New("GCP project ID is required for the Pub/Sub consumer")
	}
	logger = logger.With().Str("component", "GooglePubSubConsumer").Logger()

	var opts []option.ClientOption
	if emulatorHost := os.Getenv("PUBSUB_EMULATOR_HOST"); emulatorHost != "" {
		logger.Info().Str("emulator_host", emulatorHost).Msg("Using Pub/Sub emulator")
		opts = append(opts, option.WithEndpoint(emulatorHost), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using credentials file for Pub/Sub")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for Pub/Sub")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	if cfg.MaxOutstandingMessages <= 0 {
		cfg.MaxOutstandingMessages = 100
	}
	if cfg.NumGoroutines <= 0 {
		cfg.NumGoroutines = 1
	}

	return &GooglePubSubConsumer{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		emitter:   newEmitter(cfg.InputChanCapacity, logger),
		receivers: make(map[string]*receiver),
		doneChan:  make(chan struct{}),
	}, nil
}

// Messages returns the output channel.
func (c *GooglePubSubConsumer) Messages() <-chan types.FeedMessage {
	return c.out
}

// Done returns a channel that is closed when the consumer has stopped.
func (c *GooglePubSubConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// Start records ctx as the parent of every Receive call.
func (c *GooglePubSubConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parentCtx = ctx
	return nil
}

func (c *GooglePubSubConsumer) subscriptionID(channel string) string {
	return c.cfg.SubscriptionPrefix + channel
}

// Subscribe starts receiving from the channel's subscription. Pub/Sub has no
// presence, so withPresence is ignored.
func (c *GooglePubSubConsumer) Subscribe(channel string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parentCtx == nil {
		return ErrNotStarted
	}
	if _, running := c.receivers[channel]; running {
		return nil
	}

	subID := c.subscriptionID(channel)
	sub := c.client.Subscription(subID)
	sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = c.cfg.NumGoroutines

	receiveCtx, cancel := context.WithCancel(c.parentCtx)
	r := &receiver{cancel: cancel, done: make(chan struct{})}
	c.receivers[channel] = r

	go func() {
		defer close(r.done)
		c.logger.Info().Str("subscription_id", subID).Msg("Pub/Sub Receive started")
		err := sub.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			c.handleMessage(channel, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Str("subscription_id", subID).Msg("Pub/Sub Receive exited with error")
		}
		c.logger.Info().Str("subscription_id", subID).Msg("Pub/Sub Receive stopped")
	}()
	return nil
}

// handleMessage decodes and forwards one Pub/Sub message. Messages that
// cannot be decoded are acked so they are not redelivered forever.
func (c *GooglePubSubConsumer) handleMessage(channel string, msg *pubsub.Message) {
	defer msg.Ack()
	payload, err := decodePayload(msg.Data)
	if err != nil {
		c.logger.Error().Err(err).Str("msg_id", msg.ID).Str("channel", channel).Msg("Failed to decode Pub/Sub payload")
		return
	}
	c.emit(types.FeedMessage{
		Channel:    channel,
		Kind:       types.KindMessage,
		ID:         msg.ID,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	})
}

// Unsubscribe cancels the channel's Receive call and waits for it to return.
func (c *GooglePubSubConsumer) Unsubscribe(channel string) error {
	c.mu.Lock()
	if c.parentCtx == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	r, ok := c.receivers[channel]
	delete(c.receivers, channel)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	r.cancel()
	<-r.done
	return nil
}

// Stop cancels every Receive call, closes the client and the message channel.
func (c *GooglePubSubConsumer) Stop() error {
	var closeErr error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		c.mu.Lock()
		running := c.receivers
		c.receivers = make(map[string]*receiver)
		c.mu.Unlock()

		for _, r := range running {
			r.cancel()
		}
		for channel, r := range running {
			select {
			case <-r.done:
			case <-time.After(30 * time.Second):
				c.logger.Error().Str("channel", channel).Msg("Timeout waiting for Pub/Sub Receive to stop")
			}
		}

		if err := c.client.Close(); err != nil {
			closeErr = fmt.Errorf("closing Pub/Sub client: %w", err)
		}
		c.shutdown()
		close(c.doneChan)
	})
	return closeErr
}
