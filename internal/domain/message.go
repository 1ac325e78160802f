package domain

import (
	"context"
	"time"
)

// Message test payload types.
const (
	MessageTypeJSON   = "json"
	MessageTypeBinary = "binary"
)

// MessageTest is one batch publish run against the broker.
type MessageTest struct {
	BaseModel
	RunID       string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Topic       string     `gorm:"size:255;not null" json:"topic"`
	PayloadSize int        `gorm:"not null" json:"payload_size"`
	MessageType string     `gorm:"size:16;not null;default:json" json:"message_type"`
	Retained    bool       `json:"retained"`
	Duplicate   bool       `json:"duplicate"`
	QoSLevel    int        `gorm:"column:qos_level" json:"qos_level"`
	Count       int        `gorm:"not null" json:"count"`
	Published   int        `json:"published"`
	Status      string     `gorm:"size:16;index;not null;default:pending" json:"status"`
	Error       string     `gorm:"size:1024" json:"error,omitempty"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

// BytesPublished is the payload volume the run put on the wire.
func (m *MessageTest) BytesPublished() int64 {
	return int64(m.Published) * int64(m.PayloadSize)
}

// MessageTestInput carries the parameters of a new message test.
type MessageTestInput struct {
	Topic       string
	PayloadSize int
	MessageType string
	Retained    bool
	Duplicate   bool
	QoSLevel    int
	Count       int
}

// PublishBatch describes a sequence of messages for a MessagePublisher.
// Payload builds the body of message seq, counting from 1. With Duplicate
// set every message is sent twice, as a redelivery would be.
type PublishBatch struct {
	Topic     string
	QoS       byte
	Retained  bool
	Duplicate bool
	Count     int
	Payload   func(seq int) ([]byte, error)
}

// MessagePublisher sends a batch of messages to the broker and returns how
// many were acknowledged before the first failure.
type MessagePublisher interface {
	Publish(ctx context.Context, batch PublishBatch) (int, error)
}

// MessageTestRepository defines the data access interface for message tests.
type MessageTestRepository interface {
	Create(ctx context.Context, test *MessageTest) error
	GetByID(ctx context.Context, id uint) (*MessageTest, error)
	List(ctx context.Context, req PageRequest) (*PageResult[MessageTest], error)
	Update(ctx context.Context, test *MessageTest) error
	Delete(ctx context.Context, id uint) error
}

// MessageTestService defines the business logic interface for message tests.
type MessageTestService interface {
	ListMessageTests(ctx context.Context, req PageRequest) (*PageResult[MessageTest], error)
	GetMessageTest(ctx context.Context, id uint) (*MessageTest, error)
	CreateMessageTest(ctx context.Context, in MessageTestInput) (*MessageTest, error)
	DeleteMessageTest(ctx context.Context, id uint) error
	// RunMessageTest marks the test running and publishes in the background.
	RunMessageTest(ctx context.Context, id uint) (*MessageTest, error)
	// ExecuteMessageTest publishes synchronously and returns the final record.
	ExecuteMessageTest(ctx context.Context, id uint) (*MessageTest, error)
	// Close cancels background runs and waits for them to record their end.
	Close()
}
