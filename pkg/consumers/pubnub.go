package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// PubNubConfig holds configuration for the PubNub consumer.
type PubNubConfig struct {
	// UserID identifies this process to PubNub. A random one is used if empty.
	UserID string
	// Keys maps each channel to the subscribe key it is published under.
	Keys              map[string]string
	InputChanCapacity int
}

// PubNubConsumer receives feed messages from PubNub. The demo channels live
// under different subscribe keys, so it keeps one client per key.
type PubNubConsumer struct {
	cfg    PubNubConfig
	logger zerolog.Logger
	*emitter

	clients   map[string]*pubnub.PubNub // by subscribe key
	listeners map[string]*pubnub.Listener

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	doneChan chan struct{}
}

// NewPubNubConsumer creates one PubNub client per distinct subscribe key.
func NewPubNubConsumer(cfg PubNubConfig, logger zerolog.Logger) (*PubNubConsumer, error) {
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("at least one channel subscribe key is required")
	}
	if cfg.UserID == "" {
		cfg.UserID = "rtview-feed-" + uuid.NewString()
	}
	logger = logger.With().Str("component", "PubNubConsumer").Logger()

	c := &PubNubConsumer{
		cfg:       cfg,
		logger:    logger,
		emitter:   newEmitter(cfg.InputChanCapacity, logger),
		clients:   make(map[string]*pubnub.PubNub),
		listeners: make(map[string]*pubnub.Listener),
		doneChan:  make(chan struct{}),
	}
	for channel, key := range cfg.Keys {
		if key == "" {
			return nil, fmt.Errorf("channel %s: subscribe key is required", channel)
		}
		if _, ok := c.clients[key]; ok {
			continue
		}
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
		pnConfig.SubscribeKey = key
		c.clients[key] = pubnub.NewPubNub(pnConfig)
	}
	logger.Info().Int("clients", len(c.clients)).Str("user_id", cfg.UserID).Msg("PubNub clients created")
	return c, nil
}

// Messages returns the output channel.
func (c *PubNubConsumer) Messages() <-chan types.FeedMessage {
	return c.out
}

// Done returns a channel that is closed when the consumer has stopped.
func (c *PubNubConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// Start attaches a listener to every client.
func (c *PubNubConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	listenCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for key, pn := range c.clients {
		listener := pubnub.NewListener()
		c.listeners[key] = listener
		pn.AddListener(listener)

		c.wg.Add(1)
		go c.listen(listenCtx, key, listener)
	}
	c.started = true
	return nil
}

func (c *PubNubConsumer) listen(ctx context.Context, key string, listener *pubnub.Listener) {
	defer c.wg.Done()
	logger := c.logger.With().Str("subscribe_key", key).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-listener.Status:
			if status == nil {
				continue
			}
			if status.Error {
				logger.Error().Err(status.ErrorData).Interface("category", status.Category).Msg("PubNub status error")
			} else {
				logger.Info().Interface("category", status.Category).Strs("channels", status.AffectedChannels).Msg("PubNub status")
			}
		case msg := <-listener.Message:
			if msg == nil {
				continue
			}
			feedMsg, err := messageFromPubNub(msg)
			if err != nil {
				logger.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to decode PubNub message")
				continue
			}
			c.emit(feedMsg)
		case presence := <-listener.Presence:
			if presence == nil {
				continue
			}
			c.emit(presenceFromPubNub(presence))
		}
	}
}

// messageFromPubNub converts a PubNub message to a FeedMessage. Message bodies
// arrive already decoded; string bodies holding JSON are decoded here.
func messageFromPubNub(msg *pubnub.PNMessage) (types.FeedMessage, error) {
	var payload types.RawMessage
	switch body := msg.Message.(type) {
	case map[string]interface{}:
		payload = types.RawMessage(body)
	case string:
		decoded, err := decodePayload([]byte(body))
		if err != nil {
			return types.FeedMessage{}, err
		}
		payload = decoded
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return types.FeedMessage{}, fmt.Errorf("unsupported message body %T: %w", body, err)
		}
		decoded, err := decodePayload(data)
		if err != nil {
			return types.FeedMessage{}, err
		}
		payload = decoded
	}
	return types.FeedMessage{
		Channel:    msg.Channel,
		Kind:       types.KindMessage,
		ID:         strconv.FormatInt(msg.Timetoken, 10),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func presenceFromPubNub(p *pubnub.PNPresence) types.FeedMessage {
	return types.FeedMessage{
		Channel: p.Channel,
		Kind:    types.KindPresence,
		ID:      strconv.FormatInt(p.Timetoken, 10),
		Payload: types.RawMessage{
			"event":     p.Event,
			"uuid":      p.UUID,
			"occupancy": p.Occupancy,
			"timestamp": p.Timestamp,
		},
		ReceivedAt: time.Now().UTC(),
	}
}

func (c *PubNubConsumer) clientFor(channel string) (*pubnub.PubNub, error) {
	key, ok := c.cfg.Keys[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return c.clients[key], nil
}

// Subscribe subscribes channel on the client holding its subscribe key.
func (c *PubNubConsumer) Subscribe(channel string, withPresence bool) error {
	if !c.isStarted() {
		return ErrNotStarted
	}
	pn, err := c.clientFor(channel)
	if err != nil {
		return err
	}
	pn.Subscribe().Channels([]string{channel}).WithPresence(withPresence).Execute()
	c.logger.Info().Str("channel", channel).Bool("presence", withPresence).Msg("Subscribed to PubNub channel")
	return nil
}

// Unsubscribe leaves channel.
func (c *PubNubConsumer) Unsubscribe(channel string) error {
	if !c.isStarted() {
		return ErrNotStarted
	}
	pn, err := c.clientFor(channel)
	if err != nil {
		return err
	}
	pn.Unsubscribe().Channels([]string{channel}).Execute()
	c.logger.Info().Str("channel", channel).Msg("Unsubscribed from PubNub channel")
	return nil
}

func (c *PubNubConsumer) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Channels lists the channels this consumer can route, sorted.
func (c *PubNubConsumer) Channels() []string {
	out := make([]string, 0, len(c.cfg.Keys))
	for ch := range c.cfg.Keys {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Stop unsubscribes everything, releases the clients and closes the message channel.
func (c *PubNubConsumer) Stop() error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping PubNub consumer...")
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
		c.wg.Wait()

		for key, pn := range c.clients {
			pn.UnsubscribeAll()
			if l, ok := c.listeners[key]; ok {
				pn.RemoveListener(l)
			}
			pn.Destroy()
		}
		c.shutdown()
		close(c.doneChan)
		c.logger.Info().Msg("PubNub consumer stopped.")
	})
	return nil
}
