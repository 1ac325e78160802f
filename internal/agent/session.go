package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/simp-lee/mqttbench/internal/broker"
)

// Paho client settings for agent sessions.
const (
	sessionKeepAlive     = 120 * time.Second
	connectRetryInterval = 10 * time.Second
	connectWait          = 120 * time.Second
	subscribeWait        = 60 * time.Second
	ackWait              = 120 * time.Second
	disconnectQuiesce    = 250
)

// Session is one MQTT client connection of the pool.
type Session interface {
	// Connect connects to the broker. The session subscribes on every
	// (re)connect and answers each message with an ACK.
	Connect(ctx context.Context) error
	Disconnect()
}

// SessionConfig describes one pool client.
type SessionConfig struct {
	Endpoint broker.Endpoint
	Topic    string
	QoS      byte
	AckTopic string
}

// SessionFactory creates unconnected sessions.
type SessionFactory func(SessionConfig) Session

// NewPahoFactory returns a factory of paho-backed sessions that count
// traffic in stats.
func NewPahoFactory(stats *Stats, logger *slog.Logger) SessionFactory {
	return func(cfg SessionConfig) Session {
		return &pahoSession{
			cfg:       cfg,
			stats:     stats,
			logger:    logger,
			now:       time.Now,
			newClient: mqtt.NewClient,
		}
	}
}

type pahoSession struct {
	cfg       SessionConfig
	stats     *Stats
	logger    *slog.Logger
	now       func() time.Time
	newClient func(*mqtt.ClientOptions) mqtt.Client
	client    mqtt.Client
}

func (s *pahoSession) options() *mqtt.ClientOptions {
	opts := broker.ClientOptions(s.cfg.Endpoint, sessionKeepAlive, connectWait).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Debug("mqtt connection lost",
			slog.String("client_id", s.cfg.Endpoint.ClientID),
			slog.String("error", err.Error()),
		)
	})
	return opts
}

func (s *pahoSession) Connect(ctx context.Context) error {
	s.client = s.newClient(s.options())
	if err := broker.Connect(ctx, s.client, connectWait); err != nil {
		// Stops the retry loop of a connection that never came up.
		s.client.Disconnect(0)
		return fmt.Errorf("client %s: %w", s.cfg.Endpoint.ClientID, err)
	}
	return nil
}

func (s *pahoSession) Disconnect() {
	if s.client != nil {
		s.client.Disconnect(disconnectQuiesce)
	}
}

// onConnect runs on its own goroutine after every successful connect.
func (s *pahoSession) onConnect(c mqtt.Client) {
	if s.cfg.Topic == "" {
		return
	}
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	if err := broker.Wait(context.Background(), token, subscribeWait); err != nil {
		s.logger.Warn("mqtt subscribe failed",
			slog.String("client_id", s.cfg.Endpoint.ClientID),
			slog.String("topic", s.cfg.Topic),
			slog.String("error", err.Error()),
		)
	}
}

func (s *pahoSession) onMessage(c mqtt.Client, msg mqtt.Message) {
	s.stats.addReceived()
	go s.ack(c, msg)
}

func (s *pahoSession) ack(c mqtt.Client, msg mqtt.Message) {
	payload, err := BuildACK(msg.Payload(), s.cfg.Endpoint.ClientID, s.now())
	if err != nil {
		s.logger.Debug("dropping non-JSON message",
			slog.String("client_id", s.cfg.Endpoint.ClientID),
			slog.String("error", err.Error()),
		)
		return
	}
	token := c.Publish(s.cfg.AckTopic, msg.Qos(), false, payload)
	if err := broker.Wait(context.Background(), token, ackWait); err != nil {
		s.logger.Warn("ack publish failed",
			slog.String("client_id", s.cfg.Endpoint.ClientID),
			slog.String("topic", s.cfg.AckTopic),
			slog.String("error", err.Error()),
		)
		return
	}
	s.stats.addAcked()
}
