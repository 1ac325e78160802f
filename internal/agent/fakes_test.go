package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/simp-lee/mqttbench/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- sessions ---

type fakeSession struct {
	cfg          SessionConfig
	err          error
	block        chan struct{}
	disconnected atomic.Bool
}

func (s *fakeSession) Connect(ctx context.Context) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func (s *fakeSession) Disconnect() { s.disconnected.Store(true) }

type fakeFactory struct {
	mu       sync.Mutex
	fail     map[string]bool
	block    chan struct{}
	sessions []*fakeSession
}

func (f *fakeFactory) New(cfg SessionConfig) Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{cfg: cfg, block: f.block}
	if f.fail[cfg.Endpoint.ClientID] {
		s.err = errors.New("connection refused")
	}
	f.sessions = append(f.sessions, s)
	return s
}

func (f *fakeFactory) all() []*fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSession(nil), f.sessions...)
}

// --- master ---

type fakeMaster struct {
	mu            sync.Mutex
	registrations []protocol.Registration
	heartbeats    int
	heartbeatErr  func(n int) error
	results       chan protocol.ConfigResult
}

func newFakeMaster() *fakeMaster {
	return &fakeMaster{results: make(chan protocol.ConfigResult, 32)}
}

func (m *fakeMaster) Register(_ context.Context, reg protocol.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, reg)
	return nil
}

func (m *fakeMaster) Heartbeat(context.Context, protocol.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	if m.heartbeatErr != nil {
		return m.heartbeatErr(m.heartbeats)
	}
	return nil
}

func (m *fakeMaster) ReportResult(_ context.Context, res protocol.ConfigResult) error {
	m.results <- res
	return nil
}

func (m *fakeMaster) registrationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registrations)
}

// --- paho ---

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publishedMsg struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	opts         *mqtt.ClientOptions
	connectErr   error
	subscribed   map[string]byte
	handler      mqtt.MessageHandler
	published    chan publishedMsg
	disconnected []uint
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: map[string]byte{}, published: make(chan publishedMsg, 8)}
}

func (c *fakeClient) IsConnected() bool                       { return true }
func (c *fakeClient) IsConnectionOpen() bool                  { return true }
func (c *fakeClient) Connect() mqtt.Token                     { return &fakeToken{err: c.connectErr} }
func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return &fakeToken{} }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = append(c.disconnected, quiesce)
}

func (c *fakeClient) Subscribe(topic string, qos byte, h mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[topic] = qos
	c.handler = h
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.published <- publishedMsg{topic: topic, qos: qos, payload: payload.([]byte)}
	return &fakeToken{}
}

type fakeMessage struct {
	qos     byte
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "bench/topic" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
