package types

import "time"

// MessageKind distinguishes data messages from presence notifications.
type MessageKind string

const (
	KindMessage  MessageKind = "message"
	KindPresence MessageKind = "presence"
)

// FeedMessage is a message received from an upstream channel, already decoded
// from its transport encoding into a flat field-value mapping.
type FeedMessage struct {
	// Channel is the upstream channel the message arrived on.
	Channel string
	// Kind is either a data message or a presence event.
	Kind MessageKind
	// ID is the transport-level identifier (timetoken, MQTT packet id, Pub/Sub id).
	ID string
	// Payload is the decoded message body.
	Payload RawMessage
	// ReceivedAt is when the consumer handed the message over.
	ReceivedAt time.Time
}
