package message

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/simp-lee/mqttbench/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.MessageTest{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// fakePublisher builds every payload and records it. When block is set it
// waits for release or cancellation before returning.
type fakePublisher struct {
	mu       sync.Mutex
	batches  []domain.PublishBatch
	payloads [][]byte
	failAt   int
	block    chan struct{}
	started  chan struct{}
}

func (p *fakePublisher) Publish(ctx context.Context, batch domain.PublishBatch) (int, error) {
	p.mu.Lock()
	p.batches = append(p.batches, batch)
	p.mu.Unlock()

	if p.started != nil {
		close(p.started)
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	for seq := 1; seq <= batch.Count; seq++ {
		if p.failAt > 0 && seq == p.failAt {
			return seq - 1, errors.New("broker unreachable")
		}
		body, err := batch.Payload(seq)
		if err != nil {
			return seq - 1, err
		}
		p.mu.Lock()
		p.payloads = append(p.payloads, body)
		p.mu.Unlock()
	}
	return batch.Count, nil
}

func newTestService(t *testing.T, pub *fakePublisher) *messageTestService {
	t.Helper()
	svc := NewMessageTestService(
		NewMessageTestRepository(setupTestDB(t)),
		pub,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	).(*messageTestService)
	t.Cleanup(svc.Close)
	return svc
}

func validInput() domain.MessageTestInput {
	return domain.MessageTestInput{Topic: "bench/msg", PayloadSize: 128, QoSLevel: 1, Count: 5}
}

func TestCreateMessageTest(t *testing.T) {
	svc := newTestService(t, &fakePublisher{})

	test, err := svc.CreateMessageTest(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateMessageTest: %v", err)
	}
	if test.MessageType != domain.MessageTypeJSON || test.Status != domain.RunPending || len(test.RunID) != 36 {
		t.Errorf("got %+v", test)
	}
}

func TestCreateMessageTest_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.MessageTestInput)
		want   string
	}{
		{"empty topic", func(in *domain.MessageTestInput) { in.Topic = "  " }, "topic is required"},
		{"wildcard topic", func(in *domain.MessageTestInput) { in.Topic = "bench/+" }, "wildcards"},
		{"zero payload", func(in *domain.MessageTestInput) { in.PayloadSize = 0 }, "payload_size"},
		{"payload too large", func(in *domain.MessageTestInput) { in.PayloadSize = maxPayloadSize + 1 }, "1MiB"},
		{"unknown type", func(in *domain.MessageTestInput) { in.MessageType = "xml" }, "message_type"},
		{"qos", func(in *domain.MessageTestInput) { in.QoSLevel = -1 }, "qos_level"},
		{"zero count", func(in *domain.MessageTestInput) { in.Count = 0 }, "count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &fakePublisher{})
			in := validInput()
			tt.mutate(&in)
			_, err := svc.CreateMessageTest(context.Background(), in)
			if !domain.IsValidation(err) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v; want validation error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestExecuteMessageTest_Completed(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()
	in := validInput()
	in.Retained, in.Duplicate = true, true
	test, _ := svc.CreateMessageTest(ctx, in)

	got, err := svc.ExecuteMessageTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("ExecuteMessageTest: %v", err)
	}
	if got.Status != domain.RunCompleted || got.Published != 5 || got.StartTime == nil || got.EndTime == nil {
		t.Errorf("got %+v", got)
	}

	batch := pub.batches[0]
	if batch.Topic != "bench/msg" || batch.QoS != 1 || !batch.Retained || !batch.Duplicate || batch.Count != 5 {
		t.Errorf("batch = %+v", batch)
	}
	for _, p := range pub.payloads {
		if len(p) != 128 || !strings.Contains(string(p), test.RunID) {
			t.Errorf("payload = %q", p)
		}
	}

	stored, _ := svc.GetMessageTest(ctx, test.ID)
	if stored.Status != domain.RunCompleted || stored.BytesPublished() != 5*128 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestExecuteMessageTest_Failed(t *testing.T) {
	svc := newTestService(t, &fakePublisher{failAt: 3})
	ctx := context.Background()
	test, _ := svc.CreateMessageTest(ctx, validInput())

	got, err := svc.ExecuteMessageTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("ExecuteMessageTest: %v", err)
	}
	if got.Status != domain.RunFailed || got.Published != 2 || got.Error != "broker unreachable" {
		t.Errorf("got status=%s published=%d error=%q", got.Status, got.Published, got.Error)
	}

	// A failed test can run again and its counters start over.
	svc.pub = &fakePublisher{}
	again, err := svc.ExecuteMessageTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.Status != domain.RunCompleted || again.Error != "" || again.Published != 5 {
		t.Errorf("rerun = %+v", again)
	}
}

func TestRunMessageTest_Async(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{}), started: make(chan struct{})}
	svc := newTestService(t, pub)
	ctx := context.Background()
	test, _ := svc.CreateMessageTest(ctx, validInput())

	got, err := svc.RunMessageTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("RunMessageTest: %v", err)
	}
	if got.Status != domain.RunRunning {
		t.Errorf("Status = %q; want running", got.Status)
	}
	<-pub.started

	if _, err := svc.RunMessageTest(ctx, test.ID); !domain.IsConflict(err) {
		t.Errorf("second run: expected conflict, got %v", err)
	}
	if err := svc.DeleteMessageTest(ctx, test.ID); !domain.IsConflict(err) {
		t.Errorf("delete running: expected conflict, got %v", err)
	}

	close(pub.block)
	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, _ := svc.GetMessageTest(ctx, test.ID)
		if stored.Status == domain.RunCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not complete, status %q", stored.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := svc.DeleteMessageTest(ctx, test.ID); err != nil {
		t.Errorf("delete after run: %v", err)
	}
}

func TestClose_CancelsRunsAndRecordsFailure(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{}), started: make(chan struct{})}
	svc := newTestService(t, pub)
	ctx := context.Background()
	test, _ := svc.CreateMessageTest(ctx, validInput())

	if _, err := svc.RunMessageTest(ctx, test.ID); err != nil {
		t.Fatalf("RunMessageTest: %v", err)
	}
	<-pub.started
	svc.Close()

	stored, _ := svc.GetMessageTest(ctx, test.ID)
	if stored.Status != domain.RunFailed || !strings.Contains(stored.Error, "context canceled") {
		t.Errorf("stored = status %q error %q", stored.Status, stored.Error)
	}
}

func TestRunMessageTest_NotFound(t *testing.T) {
	svc := newTestService(t, &fakePublisher{})
	if _, err := svc.RunMessageTest(context.Background(), 99); !domain.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
	// The failed claim must not leave the ID marked as running.
	if svc.isRunning(99) {
		t.Error("id 99 still marked running")
	}
}
