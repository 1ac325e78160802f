package agent

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/simp-lee/mqttbench/internal/protocol"
)

func newTestAgent(t *testing.T, cfg Config) (*Agent, *fakeMaster, *fakeFactory) {
	t.Helper()
	m := newFakeMaster()
	f := &fakeFactory{}
	a := New(4242, cfg, m, f.New, &Stats{}, discardLogger())
	a.localIP = func() (string, error) { return "10.0.0.5", nil }
	return a, m, f
}

func nextResult(t *testing.T, m *fakeMaster) protocol.ConfigResult {
	t.Helper()
	select {
	case res := <-m.results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no config result reported")
		return protocol.ConfigResult{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func runAgent(t *testing.T, a *Agent) (net.Conn, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, ln.Addr().(*net.TCPAddr).Port
}

func TestAgent_StartAndStop(t *testing.T) {
	a, m, f := newTestAgent(t, Config{HeartbeatInterval: time.Hour})
	conn, port := runAgent(t, a)

	waitFor(t, "registration", func() bool { return m.registrationCount() == 1 })
	reg := m.registrations[0]
	if reg.SlaveID != 4242 || reg.IP != "10.0.0.5" || reg.Port != port {
		t.Errorf("registration = %+v; want id 4242 at 10.0.0.5:%d", reg, port)
	}

	cfg := testConfig(3)
	cfg.Command = protocol.CommandStart
	if err := protocol.WriteConfig(conn, cfg); err != nil {
		t.Fatal(err)
	}

	accepted := nextResult(t, m)
	if accepted.SuccessCount != 3 || accepted.FailureCount != 0 || !strings.Contains(accepted.Message, "config accepted") {
		t.Errorf("accepted result = %+v", accepted)
	}
	started := nextResult(t, m)
	if started.SuccessCount != 3 || started.Connections != 3 {
		t.Errorf("start result = %+v; want 3 successes and connections", started)
	}
	if got := a.Stats().Connections; got != 3 {
		t.Errorf("Stats().Connections = %d; want 3", got)
	}
	if pending, ok := a.Pending(); !ok || pending.Step != 3 {
		t.Errorf("Pending() = %+v, %v", pending, ok)
	}

	cfg.Command = protocol.CommandStop
	if err := protocol.WriteConfig(conn, cfg); err != nil {
		t.Fatal(err)
	}
	stopped := nextResult(t, m)
	if stopped.SuccessCount != 0 || stopped.Connections != 0 || !strings.Contains(stopped.Message, "stopped") {
		t.Errorf("stop result = %+v", stopped)
	}
	for _, s := range f.all() {
		if !s.disconnected.Load() {
			t.Errorf("session %s still connected after stop", s.cfg.Endpoint.ClientID)
		}
	}
	waitFor(t, "stop config stored", func() bool {
		pending, ok := a.Pending()
		return ok && pending.Command == protocol.CommandStop
	})
	select {
	case after := <-m.results:
		t.Errorf("unexpected result after stop: %+v", after)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAgent_InvalidQuota(t *testing.T) {
	a, m, f := newTestAgent(t, Config{HeartbeatInterval: time.Hour})
	conn, _ := runAgent(t, a)

	cfg := testConfig(0)
	cfg.Command = protocol.CommandStart
	if err := protocol.WriteConfig(conn, cfg); err != nil {
		t.Fatal(err)
	}

	res := nextResult(t, m)
	if res.Message != "invalid quota" || res.SuccessCount != 0 || res.FailureCount != 0 {
		t.Errorf("result = %+v; want invalid quota", res)
	}
	if _, ok := a.Pending(); ok {
		t.Error("invalid config should not become pending")
	}
	if len(f.all()) != 0 {
		t.Error("no clients should be opened")
	}
}

func TestAgent_ConfigWithoutCommand(t *testing.T) {
	a, m, f := newTestAgent(t, Config{HeartbeatInterval: time.Hour})

	a.handleConfig(context.Background(), testConfig(5))

	if res := nextResult(t, m); res.SuccessCount != 5 {
		t.Errorf("result = %+v; want success_count 5", res)
	}
	select {
	case res := <-m.results:
		t.Errorf("unexpected second result %+v", res)
	default:
	}
	if len(f.all()) != 0 {
		t.Error("a config without start must not connect")
	}
}

func TestAgent_StartResetsStats(t *testing.T) {
	a, m, _ := newTestAgent(t, Config{})
	a.stats.addReceived()
	a.stats.addAcked()

	cfg := testConfig(1)
	cfg.Command = protocol.CommandStart
	a.handleConfig(context.Background(), cfg)
	nextResult(t, m)
	nextResult(t, m)

	if s := a.Stats(); s.Received != 0 || s.Acked != 0 || s.Connections != 1 {
		t.Errorf("Stats() = %+v; want reset counters and 1 connection", s)
	}
}

func TestAgent_ReregistersOnNotFound(t *testing.T) {
	a, m, _ := newTestAgent(t, Config{HeartbeatInterval: 5 * time.Millisecond})
	m.heartbeatErr = func(n int) error {
		if n == 2 {
			return ErrNotRegistered
		}
		return nil
	}
	runAgent(t, a)

	waitFor(t, "re-registration", func() bool { return m.registrationCount() >= 2 })
}

func TestAgent_ReregistersAfterFailures(t *testing.T) {
	a, m, _ := newTestAgent(t, Config{HeartbeatInterval: 2 * time.Millisecond, MaxHeartbeatFailures: 3})
	m.heartbeatErr = func(int) error { return errors.New("connection refused") }
	runAgent(t, a)

	waitFor(t, "re-registration", func() bool { return m.registrationCount() >= 2 })
	m.mu.Lock()
	beats := m.heartbeats
	m.mu.Unlock()
	if beats < 3 {
		t.Errorf("re-registered after %d heartbeats; want at least 3", beats)
	}
}

func TestNew_Defaults(t *testing.T) {
	a, _, _ := newTestAgent(t, Config{})
	if a.cfg.HeartbeatInterval != DefaultHeartbeatInterval || a.cfg.MaxHeartbeatFailures != DefaultMaxHeartbeatFailures {
		t.Errorf("cfg = %+v; want defaults", a.cfg)
	}
	if a.ID() != 4242 {
		t.Errorf("ID() = %d", a.ID())
	}
}
