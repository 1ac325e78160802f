package domain

import (
	"context"
	"time"
)

// Slave states.
const (
	SlaveOnline  = "online"
	SlaveOffline = "offline"
	SlaveRunning = "running"
)

// Defaults applied when a slave is added or registers without broker settings.
const (
	DefaultMQTTHost  = "127.0.0.1"
	DefaultMQTTPort  = 1883
	DefaultAckTopic  = "EEW/ACK/Channel1"
	DefaultKeepAlive = 60
)

// Slave is a load generator agent and the MQTT workload it is configured to run.
//
// SlaveHost and SlavePort are the agent's own control listener, learned from
// registration. MQTTHost and MQTTPort are the broker under test.
type Slave struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	MQTTHost    string    `gorm:"column:mqtt_host;size:255" json:"mqtt_host"`
	MQTTPort    int       `gorm:"column:mqtt_port" json:"mqtt_port"`
	SlaveHost   string    `gorm:"size:255" json:"slave_host"`
	SlavePort   int       `json:"slave_port"`
	ClientID    string    `gorm:"column:client_id;size:100" json:"client_id"`
	KeepAlive   int       `gorm:"default:60" json:"keep_alive"`
	Topic       string    `gorm:"size:255" json:"topic"`
	QoS         int       `gorm:"column:qos" json:"qos"`
	Start       int       `json:"start"`
	Step        int       `json:"step"`
	AckTopic    string    `gorm:"size:255" json:"ack_topic"`
	Status      string    `gorm:"size:16;index;not null;default:offline" json:"status"`
	Connections int       `json:"connections"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reachable reports whether the slave has announced a control address.
func (s *Slave) Reachable() bool {
	return s.SlaveHost != "" && s.SlavePort > 0
}

// SlaveInput carries console-editable slave settings.
//
// For updates, empty strings and a zero MQTTPort keep the stored value, and
// -1 keeps the stored QoS, Start or Step (0 is a valid value for all three).
type SlaveInput struct {
	Name     string
	MQTTHost string
	MQTTPort int
	ClientID string
	Topic    string
	QoS      int
	Start    int
	Step     int
	AckTopic string
}

// KeepValue marks an integer SlaveInput field as unchanged on update.
const KeepValue = -1

// SlaveCommand is the command carried by a config message.
type SlaveCommand string

// Commands understood by slave agents. CommandNone only delivers settings.
const (
	CommandNone  SlaveCommand = ""
	CommandStart SlaveCommand = "start"
	CommandStop  SlaveCommand = "stop"
)

// ConfigResult is the latest outcome a slave reported for a config message.
type ConfigResult struct {
	SlaveID      int64     `json:"slave_id"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Connections  int       `json:"connections"`
	Message      string    `json:"message"`
	ReceivedAt   time.Time `json:"received_at"`
}

// DeployOutcome reports the delivery result for one slave of a batch deploy.
type DeployOutcome struct {
	SlaveID int64  `json:"slave_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// SlaveEvent describes a change to a slave's state.
type SlaveEvent struct {
	Type        string    `json:"type"`
	SlaveID     int64     `json:"slave_id"`
	Status      string    `json:"status,omitempty"`
	Connections int       `json:"connections"`
	At          time.Time `json:"at"`
}

// Slave event types.
const (
	SlaveEventUpdated = "updated"
	SlaveEventDeleted = "deleted"
)

// SlaveRepository defines the data access interface for slaves.
type SlaveRepository interface {
	Create(ctx context.Context, slave *Slave) error
	GetByID(ctx context.Context, id int64) (*Slave, error)
	List(ctx context.Context, req PageRequest) (*PageResult[Slave], error)
	All(ctx context.Context) ([]Slave, error)
	// Update writes only the named columns of slave.
	Update(ctx context.Context, slave *Slave, columns ...string) error
	// MarkOffline moves every non-offline slave last seen before cutoff to
	// offline with zero connections and returns their IDs.
	MarkOffline(ctx context.Context, cutoff time.Time) ([]int64, error)
	Delete(ctx context.Context, id int64) error
}

// SlaveController delivers config messages to slave agents.
type SlaveController interface {
	Send(ctx context.Context, slave *Slave, cmd SlaveCommand) error
}

// ConfigResultStore keeps the latest ConfigResult per slave.
type ConfigResultStore interface {
	Put(result ConfigResult)
	Get(slaveID int64) (*ConfigResult, bool)
	Clear(slaveID int64)
	All() []ConfigResult
}

// SlaveEventPublisher receives slave state changes.
type SlaveEventPublisher interface {
	Publish(event SlaveEvent)
}

// SlaveService defines the business logic interface for slaves.
type SlaveService interface {
	ListSlaves(ctx context.Context, req PageRequest) (*PageResult[Slave], error)
	AllSlaves(ctx context.Context) ([]Slave, error)
	GetSlave(ctx context.Context, id int64) (*Slave, error)
	CreateSlave(ctx context.Context, in SlaveInput) (*Slave, error)
	UpdateSlave(ctx context.Context, id int64, in SlaveInput) (*Slave, error)
	DeleteSlave(ctx context.Context, id int64) error

	DeployConfig(ctx context.Context, ids []int64) []DeployOutcome
	StartSlave(ctx context.Context, id int64) error
	StopSlave(ctx context.Context, id int64) error
	ConfigResult(id int64) (*ConfigResult, bool)
	ConfigResults() []ConfigResult
	ClearConfigResult(id int64)

	Register(ctx context.Context, id int64, host string, port int) (*Slave, error)
	Heartbeat(ctx context.Context, id int64) (*Slave, error)
	ApplyConfigResult(ctx context.Context, result ConfigResult) error
	MarkStale(ctx context.Context, cutoff time.Time) (int, error)
}
