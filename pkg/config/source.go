package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/consumers"
	"github.com/illmade-knight/rtview-feed/pkg/feeds"
)

// MQTTClientConfig converts the MQTT settings for the consumer.
func (c *Config) MQTTClientConfig() *consumers.MQTTClientConfig {
	m := c.Source.MQTT
	return &consumers.MQTTClientConfig{
		BrokerURL:          m.BrokerURL,
		ClientIDPrefix:     m.ClientIDPrefix,
		Username:           m.Username,
		Password:           m.Password,
		KeepAlive:          m.KeepAlive,
		ConnectTimeout:     m.ConnectTimeout,
		ReconnectWaitMax:   m.ReconnectWaitMax,
		TopicPrefix:        m.TopicPrefix,
		QoS:                byte(m.QoS),
		CACertFile:         m.CACertFile,
		ClientCertFile:     m.ClientCertFile,
		ClientKeyFile:      m.ClientKeyFile,
		InsecureSkipVerify: m.InsecureSkipVerify,
		InputChanCapacity:  c.InputChanCapacity,
	}
}

// PubNubConfig builds the PubNub settings, routing each feed channel to its
// subscribe key.
func (c *Config) PubNubConfig(feedList []feeds.Feed) consumers.PubNubConfig {
	keys := make(map[string]string, len(feedList))
	for _, f := range feedList {
		keys[f.Channel] = f.SubscribeKey
	}
	return consumers.PubNubConfig{
		UserID:            c.Source.PubNub.UserID,
		Keys:              keys,
		InputChanCapacity: c.InputChanCapacity,
	}
}

// PubSubConsumerConfig converts the Pub/Sub settings for the consumer.
func (c *Config) PubSubConsumerConfig() *consumers.GooglePubSubConsumerConfig {
	return &consumers.GooglePubSubConsumerConfig{
		ProjectID:          c.Source.PubSub.ProjectID,
		CredentialsFile:    c.Source.PubSub.CredentialsFile,
		SubscriptionPrefix: c.Source.PubSub.SubscriptionPrefix,
		InputChanCapacity:  c.InputChanCapacity,
	}
}

// NewConsumer creates the message consumer selected by source.kind.
func (c *Config) NewConsumer(ctx context.Context, feedList []feeds.Feed, logger zerolog.Logger) (consumers.MessageConsumer, error) {
	var (
		consumer consumers.MessageConsumer
		err      error
	)
	switch c.Source.Kind {
	case SourcePubNub:
		consumer, err = consumers.NewPubNubConsumer(c.PubNubConfig(feedList), logger)
	case SourceMQTT:
		consumer, err = consumers.NewMQTTConsumer(c.MQTTClientConfig(), logger)
	case SourcePubSub:
		consumer, err = consumers.NewGooglePubSubConsumer(ctx, c.PubSubConsumerConfig(), logger)
	default:
		return nil, fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s consumer: %w", c.Source.Kind, err)
	}
	return consumer, nil
}
