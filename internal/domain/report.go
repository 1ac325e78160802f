package domain

import (
	"context"
	"time"
)

// Report aggregates the state of slaves and test runs.
type Report struct {
	Slaves             map[string]int64 `json:"slaves"`
	SlaveTotal         int64            `json:"slave_total"`
	Connections        int64            `json:"connections"`
	LinkTests          map[string]int64 `json:"link_tests"`
	MessageTests       map[string]int64 `json:"message_tests"`
	MessagesPublished  int64            `json:"messages_published"`
	BytesPublished     int64            `json:"bytes_published"`
	RecentLinkTests    []LinkTest       `json:"recent_link_tests"`
	RecentMessageTests []MessageTest    `json:"recent_message_tests"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// StatusCount is one row of a GROUP BY status query.
type StatusCount struct {
	Status string
	Count  int64
}

// ReportRepository defines the aggregate queries behind a Report.
type ReportRepository interface {
	SlaveStatusCounts(ctx context.Context) ([]StatusCount, error)
	TotalConnections(ctx context.Context) (int64, error)
	LinkTestStatusCounts(ctx context.Context) ([]StatusCount, error)
	MessageTestStatusCounts(ctx context.Context) ([]StatusCount, error)
	PublishedTotals(ctx context.Context) (messages, bytes int64, err error)
	RecentLinkTests(ctx context.Context, limit int) ([]LinkTest, error)
	RecentMessageTests(ctx context.Context, limit int) ([]MessageTest, error)
}

// ReportService builds reports.
type ReportService interface {
	BuildReport(ctx context.Context) (*Report, error)
}
