package consumers

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/rtview"
	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// --- Mocks ---

// MockConsumer is an in-memory MessageConsumer driven by the test.
type MockConsumer struct {
	msgs     chan types.FeedMessage
	doneChan chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	started  bool
	calls    []string
	StartErr error
}

func NewMockConsumer(capacity int) *MockConsumer {
	return &MockConsumer{
		msgs:     make(chan types.FeedMessage, capacity),
		doneChan: make(chan struct{}),
	}
}

func (m *MockConsumer) Messages() <-chan types.FeedMessage { return m.msgs }
func (m *MockConsumer) Done() <-chan struct{}              { return m.doneChan }

func (m *MockConsumer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return m.StartErr
}

func (m *MockConsumer) Subscribe(channel string, withPresence bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "subscribe:"+channel)
	return nil
}

func (m *MockConsumer) Unsubscribe(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "unsubscribe:"+channel)
	return nil
}

func (m *MockConsumer) Stop() error {
	m.stopOnce.Do(func() {
		close(m.msgs)
		close(m.doneChan)
	})
	return nil
}

func (m *MockConsumer) Push(msg types.FeedMessage) {
	m.msgs <- msg
}

// dispatchCall is one record handed to MockSink.
type dispatchCall struct {
	CacheName string
	Record    types.NormalizedRecord
}

// MockSink records every dispatched record.
type MockSink struct {
	Calls chan dispatchCall
}

func NewMockSink(bufferSize int) *MockSink {
	return &MockSink{Calls: make(chan dispatchCall, bufferSize)}
}

func (m *MockSink) Dispatch(cacheName string, record types.NormalizedRecord) *rtview.Result {
	m.Calls <- dispatchCall{CacheName: cacheName, Record: record}
	return nil
}

// MockPahoMessage is a mock for mqtt.Message.
type MockPahoMessage struct {
	payload   []byte
	topic     string
	messageID uint16
}

func NewMockPahoMessage(topic string, payload string, id uint16) *MockPahoMessage {
	return &MockPahoMessage{payload: []byte(payload), topic: topic, messageID: id}
}
func (m *MockPahoMessage) Duplicate() bool   { return false }
func (m *MockPahoMessage) Qos() byte         { return 1 }
func (m *MockPahoMessage) Retained() bool    { return false }
func (m *MockPahoMessage) Topic() string     { return m.topic }
func (m *MockPahoMessage) MessageID() uint16 { return m.messageID }
func (m *MockPahoMessage) Payload() []byte   { return m.payload }
func (m *MockPahoMessage) Ack()              {}

// MockPahoToken is a mock for mqtt.Token.
type MockPahoToken struct {
	err error
}

func NewMockPahoToken(err error) *MockPahoToken {
	return &MockPahoToken{err: err}
}
func (t *MockPahoToken) Wait() bool                       { return true }
func (t *MockPahoToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockPahoToken) Error() error                     { return t.err }
func (t *MockPahoToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// MockPahoClient is a mock for mqtt.Client.
type MockPahoClient struct {
	mqtt.Client // Embedding the interface type
	SubscribeError   error
	UnsubscribeError error
	IsConnectedVal   bool

	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	qos          byte
	disconnected bool
}

func (m *MockPahoClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	m.qos = qos
	return NewMockPahoToken(m.SubscribeError)
}

func (m *MockPahoClient) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topics...)
	return NewMockPahoToken(m.UnsubscribeError)
}

func (m *MockPahoClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.IsConnectedVal
}

func (m *MockPahoClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
}

func (m *MockPahoClient) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

func (m *MockPahoClient) Unsubscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unsubscribed...)
}

// --- Test Helper Functions ---

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}
