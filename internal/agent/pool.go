package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/simp-lee/mqttbench/internal/broker"
	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/protocol"
)

// ClientID returns the ID of the i-th pool client: base, an underscore and
// the zero-padded sequence number start+i.
func ClientID(base string, start, i int) string {
	return fmt.Sprintf("%s_%07d", base, start+i)
}

// Pool owns the agent's MQTT sessions. Opening is throttled by a token
// bucket of rampRate connections per second.
type Pool struct {
	factory  SessionFactory
	rampRate float64
	logger   *slog.Logger

	mu       sync.Mutex
	gen      uint64
	sessions []Session
}

// NewPool creates an empty pool. A rampRate <= 0 disables throttling.
func NewPool(factory SessionFactory, rampRate float64, logger *slog.Logger) *Pool {
	if factory == nil {
		panic("agent.NewPool: factory must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{factory: factory, rampRate: rampRate, logger: logger}
}

func (p *Pool) limiter() *rate.Limiter {
	if p.rampRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(p.rampRate)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(p.rampRate), burst)
}

// Open replaces the pool's sessions with cfg.Step new ones and reports how
// many connected. Cancelling ctx stops the ramp; clients not yet started
// count as failures. Sessions that connect after a later Open or Close
// are disconnected and count as failures.
func (p *Pool) Open(ctx context.Context, cfg protocol.ConfigData) (success, failure int) {
	p.mu.Lock()
	old := p.detachLocked()
	gen := p.gen
	p.mu.Unlock()
	disconnectAll(old)

	ackTopic := cfg.AckTopic
	if ackTopic == "" {
		ackTopic = domain.DefaultAckTopic
	}

	var (
		wg      sync.WaitGroup
		countMu sync.Mutex
	)
	record := func(ok bool) {
		countMu.Lock()
		defer countMu.Unlock()
		if ok {
			success++
		} else {
			failure++
		}
	}

	limiter := p.limiter()
	for i := range cfg.Step {
		if err := limiter.Wait(ctx); err != nil {
			countMu.Lock()
			failure += cfg.Step - i
			countMu.Unlock()
			break
		}

		id := ClientID(cfg.ClientID, cfg.Start, i)
		sess := p.factory(SessionConfig{
			Endpoint: broker.Endpoint{
				Host:     cfg.MQTTHost,
				Port:     cfg.MQTTPort,
				ClientID: id,
				Username: id,
				Password: id,
			},
			Topic:    cfg.Topic,
			QoS:      byte(cfg.QoS),
			AckTopic: ackTopic,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sess.Connect(ctx); err != nil {
				p.logger.Debug("mqtt client connect failed",
					slog.String("client_id", id),
					slog.String("error", err.Error()),
				)
				record(false)
				return
			}
			record(p.add(gen, sess))
		}()
	}
	wg.Wait()

	p.logger.Info("mqtt clients opened",
		slog.Int("success", success),
		slog.Int("failure", failure),
	)
	return success, failure
}

func (p *Pool) add(gen uint64, sess Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		sess.Disconnect()
		return false
	}
	p.sessions = append(p.sessions, sess)
	return true
}

// Close disconnects every session and returns how many there were.
func (p *Pool) Close() int {
	p.mu.Lock()
	sessions := p.detachLocked()
	p.mu.Unlock()
	disconnectAll(sessions)
	return len(sessions)
}

// detachLocked empties the pool and invalidates in-flight connects.
func (p *Pool) detachLocked() []Session {
	p.gen++
	sessions := p.sessions
	p.sessions = nil
	return sessions
}

func disconnectAll(sessions []Session) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Disconnect()
		}()
	}
	wg.Wait()
}

// Len returns the number of connected sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
