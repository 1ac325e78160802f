// Package agent implements the slave process: it registers with the master,
// keeps a heartbeat, receives configs on a TCP control listener and runs a
// pool of MQTT clients that acknowledge every message they receive.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/mqttbench/internal/protocol"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultHeartbeatInterval    = 5 * time.Second
	DefaultMaxHeartbeatFailures = 10
	DefaultRampRate             = 100
)

// Config holds the agent's runtime settings.
type Config struct {
	HeartbeatInterval    time.Duration
	MaxHeartbeatFailures int
	// RampRate caps new MQTT connections per second.
	RampRate float64
}

// Agent is one slave process.
type Agent struct {
	id      int
	cfg     Config
	master  Master
	pool    *Pool
	stats   *Stats
	logger  *slog.Logger
	localIP func() (string, error)
	configs chan protocol.ConfigData

	mu          sync.Mutex
	pending     *protocol.ConfigData
	cancelStart context.CancelFunc
}

// New creates an agent with the given slave ID. factory builds the pool's
// sessions; pass NewPahoFactory(stats, logger) with the same stats.
func New(id int, cfg Config, master Master, factory SessionFactory, stats *Stats, logger *slog.Logger) *Agent {
	if master == nil || factory == nil || stats == nil {
		panic("agent.New: master, factory and stats must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxHeartbeatFailures <= 0 {
		cfg.MaxHeartbeatFailures = DefaultMaxHeartbeatFailures
	}
	return &Agent{
		id:      id,
		cfg:     cfg,
		master:  master,
		pool:    NewPool(factory, cfg.RampRate, logger),
		stats:   stats,
		logger:  logger.With(slog.Int("slave_id", id)),
		localIP: LocalIP,
		configs: make(chan protocol.ConfigData, 10),
	}
}

// ID returns the slave ID.
func (a *Agent) ID() int {
	return a.id
}

// Stats returns the current traffic counters.
func (a *Agent) Stats() StatsSnapshot {
	return StatsSnapshot{
		Received:    a.stats.Received(),
		Acked:       a.stats.Acked(),
		Connections: a.pool.Len(),
	}
}

// Pending returns the last accepted config, if any.
func (a *Agent) Pending() (protocol.ConfigData, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return protocol.ConfigData{}, false
	}
	return *a.pending, true
}

// Run serves the control listener ln, registers with the master and keeps
// the heartbeat until ctx is cancelled. All MQTT clients are disconnected
// on return.
func (a *Agent) Run(ctx context.Context, ln net.Listener) error {
	port := ln.Addr().(*net.TCPAddr).Port
	a.logger.Info("slave agent started", slog.Int("control_port", port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error { return a.serve(gctx, ln) })
	g.Go(func() error { return a.processConfigs(gctx) })
	g.Go(func() error { return a.keepAlive(gctx, port) })

	err := g.Wait()
	n := a.pool.Close()
	a.logger.Info("slave agent stopped", slog.Int("disconnected", n))
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Agent) serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go a.handleConn(ctx, conn)
	}
}

// handleConn decodes messages until the peer closes the connection. Stop
// commands take effect before the config is queued.
func (a *Agent) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	release := context.AfterFunc(ctx, func() { conn.Close() })
	defer release()

	remote := conn.RemoteAddr().String()
	dec := protocol.NewDecoder(conn)
	for {
		msg, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				a.logger.Warn("control connection closed", slog.String("remote", remote), slog.String("error", err.Error()))
			}
			return
		}
		if msg.Type != protocol.TypeConfig {
			a.logger.Debug("control message ignored", slog.String("type", msg.Type))
			continue
		}
		cfg, err := msg.Config()
		if err != nil {
			a.logger.Warn("invalid config message", slog.String("remote", remote), slog.String("error", err.Error()))
			continue
		}
		if cfg.Command == protocol.CommandStop {
			a.stop(ctx)
		}
		select {
		case a.configs <- cfg:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) processConfigs(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-a.configs:
			a.handleConfig(ctx, cfg)
		}
	}
}

// handleConfig validates and stores cfg, acknowledges it to the master and
// runs a start command. Start blocks until every client has been tried.
// A stop config is stored without an acknowledgement; the zero-connection
// result from stop is the slave's final word.
func (a *Agent) handleConfig(ctx context.Context, cfg protocol.ConfigData) {
	a.logger.Info("config received",
		slog.String("command", cfg.Command),
		slog.String("mqtt_host", cfg.MQTTHost),
		slog.Int("mqtt_port", cfg.MQTTPort),
		slog.Int("start", cfg.Start),
		slog.Int("step", cfg.Step),
	)
	if cfg.Step <= 0 {
		a.report(ctx, 0, 0, "invalid quota")
		return
	}

	a.mu.Lock()
	a.pending = &cfg
	a.mu.Unlock()
	if cfg.Command == protocol.CommandStop {
		return
	}
	a.report(ctx, cfg.Step, 0, fmt.Sprintf("config accepted, %d clients", cfg.Step))

	if cfg.Command == protocol.CommandStart {
		a.start(ctx)
	}
}

func (a *Agent) start(ctx context.Context) {
	cfg, ok := a.Pending()
	if !ok {
		return
	}
	startCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelStart = cancel
	a.mu.Unlock()
	defer cancel()

	a.stats.Reset()
	success, failure := a.pool.Open(startCtx, cfg)
	a.report(ctx, success, failure, fmt.Sprintf("mqtt connect finished: %d succeeded, %d failed", success, failure))
}

// stop aborts a running start, disconnects every client and reports zero
// connections.
func (a *Agent) stop(ctx context.Context) {
	a.mu.Lock()
	if a.cancelStart != nil {
		a.cancelStart()
		a.cancelStart = nil
	}
	a.mu.Unlock()

	n := a.pool.Close()
	a.logger.Info("mqtt clients stopped", slog.Int("disconnected", n))
	a.report(ctx, 0, 0, "slave stopped, all connections closed")
}

func (a *Agent) report(ctx context.Context, success, failure int, message string) {
	res := protocol.ConfigResult{
		SlaveID:      a.id,
		SuccessCount: success,
		FailureCount: failure,
		Connections:  a.pool.Len(),
		Message:      message,
	}
	if err := a.master.ReportResult(ctx, res); err != nil {
		a.logger.Warn("config result not delivered", slog.String("error", err.Error()))
	}
}

// keepAlive registers and then heartbeats every HeartbeatInterval. A 404
// heartbeat or MaxHeartbeatFailures consecutive failures trigger a new
// registration.
func (a *Agent) keepAlive(ctx context.Context, port int) error {
	if err := a.register(ctx, port); err != nil {
		a.logger.Warn("initial registration failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			err := a.master.Heartbeat(ctx, protocol.Heartbeat{SlaveID: a.id, Timestamp: now})
			if err == nil {
				failures = 0
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			failures++
			a.logger.Warn("heartbeat failed",
				slog.Int("failures", failures),
				slog.Int("max_failures", a.cfg.MaxHeartbeatFailures),
				slog.String("error", err.Error()),
			)
			if !errors.Is(err, ErrNotRegistered) && failures < a.cfg.MaxHeartbeatFailures {
				continue
			}
			if err := a.register(ctx, port); err != nil {
				a.logger.Warn("re-registration failed", slog.String("error", err.Error()))
				continue
			}
			failures = 0
		}
	}
}

func (a *Agent) register(ctx context.Context, port int) error {
	ip, err := a.localIP()
	if err != nil {
		a.logger.Warn("local address unknown, registering as localhost", slog.String("error", err.Error()))
		ip = "localhost"
	}
	if err := a.master.Register(ctx, protocol.Registration{SlaveID: a.id, IP: ip, Port: port}); err != nil {
		return err
	}
	a.logger.Info("registered with master", slog.String("ip", ip), slog.Int("port", port))
	return nil
}
