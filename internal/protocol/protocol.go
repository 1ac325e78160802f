// Package protocol defines the messages exchanged between the master and
// slave agents.
//
// The master pushes config messages to a slave's TCP listener as one JSON
// object per line. Slaves call the master's control API with JSON bodies.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Message types.
const (
	TypeConfig = "config"
)

// Control API paths served by the master.
const (
	PathRegister     = "/register"
	PathHeartbeat    = "/heartbeat"
	PathConfigResult = "/config-result"
)

// Commands carried in ConfigData.Command.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// ErrInvalidConfig is returned for config content that cannot be decoded.
var ErrInvalidConfig = errors.New("invalid config content")

// Message is the envelope of every line sent to a slave.
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// ConfigData is the content of a config message.
type ConfigData struct {
	MQTTHost string `json:"mqtt_host"`
	MQTTPort int    `json:"mqtt_port"`
	Topic    string `json:"topic"`
	QoS      int    `json:"qos"`
	ClientID string `json:"client_id"`
	Start    int    `json:"start"`
	Step     int    `json:"step"`
	Command  string `json:"command"`
	AckTopic string `json:"ack_topic"`
}

// Registration is the body of POST /register.
type Registration struct {
	SlaveID int    `json:"slave_id" binding:"required,gt=0"`
	IP      string `json:"ip" binding:"required"`
	Port    int    `json:"port" binding:"required,gt=0,lte=65535"`
}

// Heartbeat is the body of POST /heartbeat.
type Heartbeat struct {
	SlaveID   int       `json:"slave_id" binding:"required,gt=0"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigResult is the body of POST /config-result.
type ConfigResult struct {
	SlaveID      int    `json:"slave_id" binding:"required,gt=0"`
	SuccessCount int    `json:"success_count" binding:"gte=0"`
	FailureCount int    `json:"failure_count" binding:"gte=0"`
	Connections  int    `json:"connections" binding:"gte=0"`
	Message      string `json:"message"`
}

// WriteConfig encodes a config message as a single JSON line.
func WriteConfig(w io.Writer, cfg ConfigData) error {
	content, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return json.NewEncoder(w).Encode(Message{Type: TypeConfig, Content: content})
}

// Decoder reads messages from a slave connection.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a Decoder reading from r. Numbers in unknown message
// types are kept as json.Number.
func NewDecoder(r io.Reader) *Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Decoder{dec: dec}
}

// Next reads the next message. It returns io.EOF when the peer closed the
// connection cleanly.
func (d *Decoder) Next() (Message, error) {
	var msg Message
	if err := d.dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Config decodes the content of a config message.
func (m Message) Config() (ConfigData, error) {
	if m.Type != TypeConfig {
		return ConfigData{}, fmt.Errorf("%w: message type %q", ErrInvalidConfig, m.Type)
	}
	var cfg ConfigData
	if err := json.Unmarshal(m.Content, &cfg); err != nil {
		return ConfigData{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}
