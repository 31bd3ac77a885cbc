package consumers

import (
	"context"
	"errors"

	"github.com/illmade-knight/rtview-feed/pkg/rtview"
	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// ====================================================================================
// This file defines the contracts between upstream channel consumers, the event
// loop that transforms their messages, and the sink the records are handed to.
// ====================================================================================

// ErrUnknownChannel is returned when a consumer is asked about a channel it
// has no route for.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrNotStarted is returned by Subscribe and Unsubscribe before Start.
var ErrNotStarted = errors.New("consumer not started")

// MessageConsumer is an upstream pub/sub connection carrying any number of
// channels (PubNub, MQTT, Google Pub/Sub).
type MessageConsumer interface {
	// Messages returns the channel decoded messages are delivered on. It is
	// closed once the consumer has stopped.
	Messages() <-chan types.FeedMessage
	// Start connects the consumer. Non-blocking.
	Start(ctx context.Context) error
	// Subscribe starts delivery for channel, optionally with presence events.
	Subscribe(channel string, withPresence bool) error
	// Unsubscribe stops delivery for channel.
	Unsubscribe(channel string) error
	// Stop disconnects and closes the Messages channel.
	Stop() error
	// Done returns a channel that is closed when the consumer has fully stopped.
	Done() <-chan struct{}
}

// DropCounter is implemented by consumers that count messages dropped
// because the event loop fell behind.
type DropCounter interface {
	Dropped() uint64
}

// RecordSink receives normalized records. rtview.Dispatcher implements it.
type RecordSink interface {
	Dispatch(cacheName string, record types.NormalizedRecord) *rtview.Result
}
