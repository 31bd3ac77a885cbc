package consumers

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// DefaultInputChanCapacity is the buffer between a consumer and the event loop.
const DefaultInputChanCapacity = 100

// emitter hands messages to the event loop without ever blocking the
// transport's callback goroutine.
type emitter struct {
	out     chan types.FeedMessage
	logger  zerolog.Logger
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func newEmitter(capacity int, logger zerolog.Logger) *emitter {
	if capacity <= 0 {
		capacity = DefaultInputChanCapacity
	}
	return &emitter{
		out:    make(chan types.FeedMessage, capacity),
		logger: logger,
	}
}

func (e *emitter) emit(msg types.FeedMessage) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.out <- msg:
		return true
	default:
		e.dropped.Add(1)
		e.logger.Error().Str("channel", msg.Channel).Str("msg_id", msg.ID).
			Msg("Message channel is full, message dropped. Consider increasing input_chan_capacity.")
		return false
	}
}

// shutdown closes the output channel. Later emits are discarded.
func (e *emitter) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.out)
	}
}

// Dropped reports how many messages were dropped because the buffer was full.
func (e *emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// decodePayload parses a JSON object payload.
func decodePayload(data []byte) (types.RawMessage, error) {
	var raw types.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return raw, nil
}
