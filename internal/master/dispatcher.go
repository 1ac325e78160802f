package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/protocol"
)

// ErrNoControlAddress is returned for slaves that never registered.
var ErrNoControlAddress = errors.New("slave has no control address")

// Dispatcher delivers config messages to slave agents over TCP. It implements
// domain.SlaveController.
type Dispatcher struct {
	dialer      *net.Dialer
	settleDelay time.Duration
	logger      *slog.Logger
}

// NewDispatcher returns a Dispatcher. The settle delay is how long the
// connection stays open after the write side is closed so the agent can
// drain it.
func NewDispatcher(dialTimeout, settleDelay time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		dialer:      &net.Dialer{Timeout: dialTimeout},
		settleDelay: settleDelay,
		logger:      logger.With(slog.String("component", "dispatcher")),
	}
}

// Send writes one config line carrying the slave's settings and cmd.
func (d *Dispatcher) Send(ctx context.Context, slave *domain.Slave, cmd domain.SlaveCommand) error {
	if !slave.Reachable() {
		return ErrNoControlAddress
	}
	addr := net.JoinHostPort(slave.SlaveHost, strconv.Itoa(slave.SlavePort))

	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := protocol.WriteConfig(conn, ConfigFor(slave, cmd)); err != nil {
		return fmt.Errorf("write config to %s: %w", addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	d.logger.InfoContext(ctx, "config sent",
		slog.Int64("slave_id", slave.ID),
		slog.String("addr", addr),
		slog.String("command", string(cmd)),
	)

	if d.settleDelay > 0 {
		timer := time.NewTimer(d.settleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return nil
}

// ConfigFor builds the config message content for a slave.
func ConfigFor(slave *domain.Slave, cmd domain.SlaveCommand) protocol.ConfigData {
	return protocol.ConfigData{
		MQTTHost: slave.MQTTHost,
		MQTTPort: slave.MQTTPort,
		Topic:    slave.Topic,
		QoS:      slave.QoS,
		ClientID: slave.ClientID,
		Start:    slave.Start,
		Step:     slave.Step,
		Command:  string(cmd),
		AckTopic: slave.AckTopic,
	}
}
