package domain

import (
	"context"
	"time"
)

// LinkTest is one link test run against the broker. A started test
// completes by itself after TestDuration seconds unless finished earlier.
type LinkTest struct {
	BaseModel
	RunID        string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	TestDuration int        `gorm:"not null" json:"test_duration"`
	MessageRate  int        `gorm:"not null" json:"message_rate"`
	MessageSize  int        `gorm:"not null" json:"message_size"`
	QoSLevel     int        `gorm:"column:qos_level" json:"qos_level"`
	Status       string     `gorm:"size:16;index;not null;default:pending" json:"status"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
}

// LinkTestInput carries the parameters of a new link test.
type LinkTestInput struct {
	TestDuration int
	MessageRate  int
	MessageSize  int
	QoSLevel     int
}

// LinkTestRepository defines the data access interface for link tests.
type LinkTestRepository interface {
	Create(ctx context.Context, test *LinkTest) error
	GetByID(ctx context.Context, id uint) (*LinkTest, error)
	List(ctx context.Context, req PageRequest) (*PageResult[LinkTest], error)
	Update(ctx context.Context, test *LinkTest) error
	Delete(ctx context.Context, id uint) error
	// FailRunning marks every running test failed with the given end time.
	FailRunning(ctx context.Context, end time.Time) (int64, error)
}

// LinkTestService defines the business logic interface for link tests.
type LinkTestService interface {
	ListLinkTests(ctx context.Context, req PageRequest) (*PageResult[LinkTest], error)
	GetLinkTest(ctx context.Context, id uint) (*LinkTest, error)
	CreateLinkTest(ctx context.Context, in LinkTestInput) (*LinkTest, error)
	StartLinkTest(ctx context.Context, id uint) (*LinkTest, error)
	FinishLinkTest(ctx context.Context, id uint, failed bool) (*LinkTest, error)
	DeleteLinkTest(ctx context.Context, id uint) error
	// FailInterrupted fails tests left running by a previous process.
	FailInterrupted(ctx context.Context) (int64, error)
	// Close cancels the automatic finish of running tests.
	Close()
}
