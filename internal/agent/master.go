package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/simp-lee/mqttbench/internal/protocol"
)

// ErrNotRegistered is returned by Heartbeat when the master does not know
// this slave. The agent registers again.
var ErrNotRegistered = errors.New("slave not registered with master")

// Master is the master's control API as seen by an agent.
type Master interface {
	Register(ctx context.Context, reg protocol.Registration) error
	Heartbeat(ctx context.Context, hb protocol.Heartbeat) error
	ReportResult(ctx context.Context, res protocol.ConfigResult) error
}

// MasterClient calls the master's control API over HTTP.
type MasterClient struct {
	baseURL string
	client  *http.Client
}

// NewMasterClient creates a client for the control API at host:port.
// IPv6 hosts are bracketed.
func NewMasterClient(host string, port int, timeout time.Duration) *MasterClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MasterClient{
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the master's control API root.
func (m *MasterClient) BaseURL() string {
	return m.baseURL
}

func (m *MasterClient) Register(ctx context.Context, reg protocol.Registration) error {
	return m.post(ctx, protocol.PathRegister, reg)
}

func (m *MasterClient) Heartbeat(ctx context.Context, hb protocol.Heartbeat) error {
	err := m.post(ctx, protocol.PathHeartbeat, hb)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotRegistered, err)
	}
	return err
}

func (m *MasterClient) ReportResult(ctx context.Context, res protocol.ConfigResult) error {
	return m.post(ctx, protocol.PathConfigResult, res)
}

type statusError struct {
	path string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("POST %s: unexpected status %d", e.path, e.code)
}

func (m *MasterClient) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &statusError{path: path, code: resp.StatusCode}
	}
	return nil
}

// LocalIP returns the address of the interface used for outbound traffic.
// No packets are sent.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
