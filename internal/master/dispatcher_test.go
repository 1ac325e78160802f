package master

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/protocol"
)

type received struct {
	msgs []protocol.Message
	err  error
}

// listenOnce accepts one connection and decodes messages until EOF.
func listenOnce(t *testing.T) (host string, port int, done <-chan received) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan received, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			ch <- received{err: err}
			return
		}
		defer conn.Close()
		dec := protocol.NewDecoder(conn)
		var r received
		for {
			msg, err := dec.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				r.err = err
				break
			}
			r.msgs = append(r.msgs, msg)
		}
		ch <- r
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, ch
}

func testDispatcher(settle time.Duration) *Dispatcher {
	return NewDispatcher(time.Second, settle, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatcher_Send(t *testing.T) {
	host, port, done := listenOnce(t)
	slave := &domain.Slave{
		ID: 9, SlaveHost: host, SlavePort: port,
		MQTTHost: "broker.local", MQTTPort: 1883, Topic: "bench/t", QoS: 1,
		ClientID: "edge", Start: 100, Step: 50, AckTopic: "EEW/ACK/Channel1",
	}

	if err := testDispatcher(10*time.Millisecond).Send(context.Background(), slave, domain.CommandStart); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("receiver error: %v", r.err)
		}
		if len(r.msgs) != 1 {
			t.Fatalf("received %d messages; want exactly 1", len(r.msgs))
		}
		cfg, err := r.msgs[0].Config()
		if err != nil {
			t.Fatalf("Config() error = %v", err)
		}
		want := protocol.ConfigData{
			MQTTHost: "broker.local", MQTTPort: 1883, Topic: "bench/t", QoS: 1,
			ClientID: "edge", Start: 100, Step: 50, Command: "start", AckTopic: "EEW/ACK/Channel1",
		}
		if cfg != want {
			t.Errorf("config = %+v; want %+v", cfg, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver saw no EOF; write side was not closed")
	}
}

func TestDispatcher_Send_NoCommand(t *testing.T) {
	host, port, done := listenOnce(t)
	slave := &domain.Slave{ID: 1, SlaveHost: host, SlavePort: port, Step: 1}

	if err := testDispatcher(0).Send(context.Background(), slave, domain.CommandNone); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	r := <-done
	if len(r.msgs) != 1 {
		t.Fatalf("received %d messages; want 1", len(r.msgs))
	}
	cfg, _ := r.msgs[0].Config()
	if cfg.Command != "" {
		t.Errorf("Command = %q; want empty", cfg.Command)
	}
}

func TestDispatcher_Send_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tests := []struct {
		name  string
		slave *domain.Slave
	}{
		{"never registered", &domain.Slave{ID: 1}},
		{"closed port", &domain.Slave{ID: 2, SlaveHost: "127.0.0.1", SlavePort: port}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := testDispatcher(0).Send(context.Background(), tt.slave, domain.CommandStop); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDispatcher_Send_SettleDelayHonoursContext(t *testing.T) {
	host, port, _ := listenOnce(t)
	slave := &domain.Slave{ID: 1, SlaveHost: host, SlavePort: port}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := testDispatcher(10*time.Second).Send(ctx, slave, domain.CommandNone); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Send waited %v; settle delay must stop on context cancellation", elapsed)
	}
}
