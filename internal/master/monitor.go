package master

import (
	"context"
	"log/slog"
	"time"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// Monitor periodically marks slaves that stopped sending heartbeats offline.
type Monitor struct {
	svc          domain.SlaveService
	interval     time.Duration
	offlineAfter time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewMonitor returns a Monitor checking every interval for slaves not seen
// within offlineAfter.
func NewMonitor(svc domain.SlaveService, interval, offlineAfter time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		svc:          svc,
		interval:     interval,
		offlineAfter: offlineAfter,
		logger:       logger.With(slog.String("component", "monitor")),
		now:          time.Now,
	}
}

// Run checks slave liveness until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("status monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("offline_after", m.offlineAfter),
	)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("status monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one liveness pass and returns the number of slaves marked offline.
func (m *Monitor) Check(ctx context.Context) int {
	n, err := m.svc.MarkStale(ctx, m.now().Add(-m.offlineAfter))
	if err != nil {
		m.logger.ErrorContext(ctx, "status check failed", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "slaves marked offline", slog.Int("count", n))
	}
	return n
}
