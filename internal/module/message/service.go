package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// Limits for message test parameters.
const (
	maxPayloadSize = 1 * units.MiB
	maxCount       = 1_000_000
)

// messageTestService implements domain.MessageTestService.
type messageTestService struct {
	repo   domain.MessageTestRepository
	pub    domain.MessagePublisher
	logger *slog.Logger
	now    func() time.Time

	// runCtx outlives requests; Close cancels it.
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[uint]struct{}
}

// NewMessageTestService creates a MessageTestService that publishes through pub.
func NewMessageTestService(repo domain.MessageTestRepository, pub domain.MessagePublisher, logger *slog.Logger) domain.MessageTestService {
	if repo == nil || pub == nil {
		panic("message.NewMessageTestService: repo and publisher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &messageTestService{
		repo:    repo,
		pub:     pub,
		logger:  logger.With(slog.String("component", "message")),
		now:     time.Now,
		runCtx:  ctx,
		cancel:  cancel,
		running: make(map[uint]struct{}),
	}
}

func (s *messageTestService) ListMessageTests(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.MessageTest], error) {
	return s.repo.List(ctx, req)
}

func (s *messageTestService) GetMessageTest(ctx context.Context, id uint) (*domain.MessageTest, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateMessageTest validates the parameters and stores a pending test.
func (s *messageTestService) CreateMessageTest(ctx context.Context, in domain.MessageTestInput) (*domain.MessageTest, error) {
	in.Topic = strings.TrimSpace(in.Topic)
	in.MessageType = strings.ToLower(strings.TrimSpace(in.MessageType))
	if in.MessageType == "" {
		in.MessageType = domain.MessageTypeJSON
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	test := &domain.MessageTest{
		RunID:       uuid.NewString(),
		Topic:       in.Topic,
		PayloadSize: in.PayloadSize,
		MessageType: in.MessageType,
		Retained:    in.Retained,
		Duplicate:   in.Duplicate,
		QoSLevel:    in.QoSLevel,
		Count:       in.Count,
		Status:      domain.RunPending,
	}
	if err := s.repo.Create(ctx, test); err != nil {
		return nil, err
	}
	return test, nil
}

// DeleteMessageTest removes a test that is not running.
func (s *messageTestService) DeleteMessageTest(ctx context.Context, id uint) error {
	if s.isRunning(id) {
		return domain.NewAppError(domain.CodeConflict, "message test is running", nil)
	}
	return s.repo.Delete(ctx, id)
}

// RunMessageTest marks the test running and publishes in the background.
func (s *messageTestService) RunMessageTest(ctx context.Context, id uint) (*domain.MessageTest, error) {
	test, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := *test
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.runCtx, test)
	}()
	return &snapshot, nil
}

// ExecuteMessageTest publishes within the caller's context and returns the final record.
func (s *messageTestService) ExecuteMessageTest(ctx context.Context, id uint) (*domain.MessageTest, error) {
	test, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, test)
	return test, nil
}

// Close cancels background runs and waits for them to finish.
func (s *messageTestService) Close() {
	s.cancel()
	s.wg.Wait()
}

// begin claims the test and records it as running. A test can be run again
// once its previous run ended.
func (s *messageTestService) begin(ctx context.Context, id uint) (*domain.MessageTest, error) {
	s.mu.Lock()
	if _, busy := s.running[id]; busy {
		s.mu.Unlock()
		return nil, domain.NewAppError(domain.CodeConflict, "message test is running", nil)
	}
	s.running[id] = struct{}{}
	s.mu.Unlock()

	test, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.release(id)
		return nil, err
	}

	now := s.now()
	test.Status = domain.RunRunning
	test.StartTime = &now
	test.EndTime = nil
	test.Published = 0
	test.Error = ""
	if err := s.repo.Update(ctx, test); err != nil {
		s.release(id)
		return nil, err
	}

	s.logger.InfoContext(ctx, "message test started",
		slog.Uint64("id", uint64(test.ID)),
		slog.String("run_id", test.RunID),
		slog.String("topic", test.Topic),
		slog.Int("count", test.Count),
		slog.String("payload", units.BytesSize(float64(test.PayloadSize))),
	)
	return test, nil
}

func (s *messageTestService) execute(ctx context.Context, test *domain.MessageTest) {
	defer s.release(test.ID)

	runID, size, messageType := test.RunID, test.PayloadSize, test.MessageType
	n, err := s.pub.Publish(ctx, domain.PublishBatch{
		Topic:     test.Topic,
		QoS:       byte(test.QoSLevel),
		Retained:  test.Retained,
		Duplicate: test.Duplicate,
		Count:     test.Count,
		Payload: func(seq int) ([]byte, error) {
			return buildPayload(runID, seq, size, messageType)
		},
	})

	end := s.now()
	test.Published = n
	test.EndTime = &end
	test.Status = domain.RunCompleted
	if err != nil {
		test.Status = domain.RunFailed
		test.Error = truncate(err.Error(), 1024)
	}

	// The record must be written even when ctx was cancelled mid-run.
	if uerr := s.repo.Update(context.WithoutCancel(ctx), test); uerr != nil {
		s.logger.Error("record message test result failed",
			slog.Uint64("id", uint64(test.ID)),
			slog.String("error", uerr.Error()),
		)
	}

	attrs := []any{
		slog.Uint64("id", uint64(test.ID)),
		slog.String("status", test.Status),
		slog.Int("published", n),
		slog.String("bytes", units.HumanSize(float64(test.BytesPublished()))),
	}
	if err != nil {
		s.logger.Warn("message test failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.Info("message test completed", attrs...)
}

func (s *messageTestService) isRunning(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *messageTestService) release(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func validateInput(in domain.MessageTestInput) error {
	switch {
	case in.Topic == "":
		return domain.NewAppError(domain.CodeValidation, "topic is required", nil)
	case len(in.Topic) > 255:
		return domain.NewAppError(domain.CodeValidation, "topic must be at most 255 characters", nil)
	case strings.ContainsAny(in.Topic, "+#"):
		return domain.NewAppError(domain.CodeValidation, "topic must not contain wildcards", nil)
	case in.PayloadSize <= 0 || in.PayloadSize > maxPayloadSize:
		return domain.NewAppError(domain.CodeValidation,
			fmt.Sprintf("payload_size must be between 1 and %s", units.BytesSize(maxPayloadSize)), nil)
	case in.MessageType != domain.MessageTypeJSON && in.MessageType != domain.MessageTypeBinary:
		return domain.NewAppError(domain.CodeValidation, "message_type must be json or binary", nil)
	case in.QoSLevel < 0 || in.QoSLevel > 2:
		return domain.NewAppError(domain.CodeValidation, "qos_level must be 0, 1 or 2", nil)
	case in.Count <= 0 || in.Count > maxCount:
		return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("count must be between 1 and %d", maxCount), nil)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
