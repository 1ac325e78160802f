package linktest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// Limits for link test parameters.
const (
	maxTestDuration = 24 * 60 * 60
	maxMessageSize  = 256 * 1024 * 1024
)

// stopper is the part of *time.Timer the service keeps.
type stopper interface {
	Stop() bool
}

// linkTestService implements domain.LinkTestService.
type linkTestService struct {
	repo   domain.LinkTestRepository
	logger *slog.Logger
	now    func() time.Time
	after  func(d time.Duration, f func()) stopper

	mu     sync.Mutex
	timers map[uint]stopper
	closed bool
}

// NewLinkTestService creates a LinkTestService with the given repository.
func NewLinkTestService(repo domain.LinkTestRepository, logger *slog.Logger) domain.LinkTestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &linkTestService{
		repo:   repo,
		logger: logger.With(slog.String("component", "linktest")),
		now:    time.Now,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		timers: make(map[uint]stopper),
	}
}

// ListLinkTests returns a page of link tests.
func (s *linkTestService) ListLinkTests(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.LinkTest], error) {
	return s.repo.List(ctx, req)
}

// GetLinkTest retrieves a link test by ID.
func (s *linkTestService) GetLinkTest(ctx context.Context, id uint) (*domain.LinkTest, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateLinkTest validates the parameters and stores a pending test with a fresh run ID.
func (s *linkTestService) CreateLinkTest(ctx context.Context, in domain.LinkTestInput) (*domain.LinkTest, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	test := &domain.LinkTest{
		RunID:        uuid.NewString(),
		TestDuration: in.TestDuration,
		MessageRate:  in.MessageRate,
		MessageSize:  in.MessageSize,
		QoSLevel:     in.QoSLevel,
		Status:       domain.RunPending,
	}
	if err := s.repo.Create(ctx, test); err != nil {
		return nil, err
	}
	return test, nil
}

// StartLinkTest moves a pending test to running and schedules its completion.
func (s *linkTestService) StartLinkTest(ctx context.Context, id uint) (*domain.LinkTest, error) {
	test, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != domain.RunPending {
		return nil, domain.NewAppError(domain.CodeConflict, fmt.Sprintf("link test is %s", test.Status), nil)
	}

	now := s.now()
	test.Status = domain.RunRunning
	test.StartTime = &now
	if err := s.repo.Update(ctx, test); err != nil {
		return nil, err
	}

	s.schedule(test)
	s.logger.InfoContext(ctx, "link test started",
		slog.Uint64("id", uint64(test.ID)),
		slog.String("run_id", test.RunID),
		slog.Int("duration_s", test.TestDuration),
	)
	return test, nil
}

// FinishLinkTest ends a running test as completed, or failed when failed is set.
func (s *linkTestService) FinishLinkTest(ctx context.Context, id uint, failed bool) (*domain.LinkTest, error) {
	test, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != domain.RunRunning {
		return nil, domain.NewAppError(domain.CodeConflict, fmt.Sprintf("link test is %s", test.Status), nil)
	}

	s.cancel(id)
	now := s.now()
	test.Status = domain.RunCompleted
	if failed {
		test.Status = domain.RunFailed
	}
	test.EndTime = &now
	if err := s.repo.Update(ctx, test); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "link test finished",
		slog.Uint64("id", uint64(test.ID)),
		slog.String("status", test.Status),
	)
	return test, nil
}

// DeleteLinkTest removes a test and cancels its scheduled completion.
func (s *linkTestService) DeleteLinkTest(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cancel(id)
	return nil
}

// FailInterrupted fails tests still recorded as running. Their completion
// timers died with the previous process, so nothing else would end them.
func (s *linkTestService) FailInterrupted(ctx context.Context) (int64, error) {
	n, err := s.repo.FailRunning(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "interrupted link tests marked failed", slog.Int64("count", n))
	}
	return n, nil
}

// Close stops every pending completion timer. Running tests stay running
// until FailInterrupted runs at the next start.
func (s *linkTestService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *linkTestService) schedule(test *domain.LinkTest) {
	id := test.ID
	d := time.Duration(test.TestDuration) * time.Second

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.timers[id] = s.after(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		if _, err := s.FinishLinkTest(context.Background(), id, false); err != nil && !domain.IsConflict(err) && !domain.IsNotFound(err) {
			s.logger.Error("auto finish link test failed",
				slog.Uint64("id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	})
}

func (s *linkTestService) cancel(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func validateInput(in domain.LinkTestInput) error {
	switch {
	case in.TestDuration <= 0 || in.TestDuration > maxTestDuration:
		return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("test_duration must be between 1 and %d seconds", maxTestDuration), nil)
	case in.MessageRate <= 0:
		return domain.NewAppError(domain.CodeValidation, "message_rate must be positive", nil)
	case in.MessageSize <= 0 || in.MessageSize > maxMessageSize:
		return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("message_size must be between 1 and %d bytes", maxMessageSize), nil)
	case in.QoSLevel < 0 || in.QoSLevel > 2:
		return domain.NewAppError(domain.CodeValidation, "qos_level must be 0, 1 or 2", nil)
	}
	return nil
}
