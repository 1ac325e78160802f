package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// PublisherConfig configures the console's test publisher.
type PublisherConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ConnectTimeout time.Duration
	// PublishTimeout bounds the wait for each acknowledgement.
	PublishTimeout time.Duration
}

// Publisher connects one short-lived MQTT client per batch.
type Publisher struct {
	cfg       PublisherConfig
	logger    *slog.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewPublisher creates a Publisher for the broker in cfg.
func NewPublisher(cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	return &Publisher{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "publisher")),
		newClient: mqtt.NewClient,
	}
}

var _ domain.MessagePublisher = (*Publisher)(nil)

// Publish sends every message of batch in order and returns how many were
// acknowledged before the first failure.
func (p *Publisher) Publish(ctx context.Context, batch domain.PublishBatch) (int, error) {
	clientID := "mqttbench-" + uuid.NewString()[:8]
	opts := ClientOptions(Endpoint{
		Host:     p.cfg.Host,
		Port:     p.cfg.Port,
		ClientID: clientID,
		Username: p.cfg.Username,
		Password: p.cfg.Password,
	}, 60*time.Second, p.cfg.ConnectTimeout)

	client := p.newClient(opts)
	if err := Connect(ctx, client, p.cfg.ConnectTimeout); err != nil {
		return 0, err
	}
	defer client.Disconnect(250)

	sends := 1
	if batch.Duplicate {
		sends = 2
	}

	started := time.Now()
	published := 0
	for seq := 1; seq <= batch.Count; seq++ {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		payload, err := batch.Payload(seq)
		if err != nil {
			return published, fmt.Errorf("build payload %d: %w", seq, err)
		}
		for range sends {
			token := client.Publish(batch.Topic, batch.QoS, batch.Retained, payload)
			if err := Wait(ctx, token, p.cfg.PublishTimeout); err != nil {
				return published, fmt.Errorf("publish %d: %w", seq, err)
			}
		}
		published++
	}

	p.logger.InfoContext(ctx, "batch published",
		slog.String("topic", batch.Topic),
		slog.Int("count", published),
		slog.Duration("elapsed", time.Since(started)),
	)
	return published, nil
}
