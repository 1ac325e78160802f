package report

import (
	"context"
	"errors"
	"fmt"
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
	if err := db.AutoMigrate(&domain.Slave{}, &domain.LinkTest{}, &domain.MessageTest{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	slaves := []domain.Slave{
		{Name: "a", Status: domain.SlaveOnline, Connections: 0},
		{Name: "b", Status: domain.SlaveRunning, Connections: 300},
		{Name: "c", Status: domain.SlaveRunning, Connections: 200},
		{Name: "d", Status: domain.SlaveOffline},
	}
	if err := db.Create(&slaves).Error; err != nil {
		t.Fatalf("seed slaves: %v", err)
	}
	links := make([]domain.LinkTest, 0, 7)
	for i, status := range []string{
		domain.RunPending, domain.RunRunning, domain.RunCompleted, domain.RunCompleted,
		domain.RunCompleted, domain.RunCompleted, domain.RunFailed,
	} {
		links = append(links, domain.LinkTest{
			RunID: fmt.Sprintf("link-%d", i), TestDuration: 60, MessageRate: 10, MessageSize: 64, Status: status,
		})
	}
	if err := db.Create(&links).Error; err != nil {
		t.Fatalf("seed link tests: %v", err)
	}
	msgs := []domain.MessageTest{
		{RunID: "m1", Topic: "t", PayloadSize: 100, Count: 10, Published: 10, Status: domain.RunCompleted},
		{RunID: "m2", Topic: "t", PayloadSize: 1024, Count: 5, Published: 3, Status: domain.RunFailed},
		{RunID: "m3", Topic: "t", PayloadSize: 50, Count: 1, Status: domain.RunPending},
	}
	if err := db.Create(&msgs).Error; err != nil {
		t.Fatalf("seed message tests: %v", err)
	}
}

func TestBuildReport(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	svc := NewReportService(NewReportRepository(db)).(*reportService)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	r, err := svc.BuildReport(context.Background())
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}

	if r.SlaveTotal != 4 {
		t.Errorf("SlaveTotal = %d; want 4", r.SlaveTotal)
	}
	wantSlaves := map[string]int64{domain.SlaveOnline: 1, domain.SlaveOffline: 1, domain.SlaveRunning: 2}
	for k, v := range wantSlaves {
		if r.Slaves[k] != v {
			t.Errorf("Slaves[%s] = %d; want %d", k, r.Slaves[k], v)
		}
	}
	if r.Connections != 500 {
		t.Errorf("Connections = %d; want 500", r.Connections)
	}
	wantLinks := map[string]int64{domain.RunPending: 1, domain.RunRunning: 1, domain.RunCompleted: 4, domain.RunFailed: 1}
	for k, v := range wantLinks {
		if r.LinkTests[k] != v {
			t.Errorf("LinkTests[%s] = %d; want %d", k, r.LinkTests[k], v)
		}
	}
	if r.MessageTests[domain.RunRunning] != 0 {
		t.Errorf("MessageTests[running] = %d; want 0", r.MessageTests[domain.RunRunning])
	}
	if _, ok := r.MessageTests[domain.RunRunning]; !ok {
		t.Error("absent statuses should still be listed")
	}
	if r.MessagesPublished != 13 {
		t.Errorf("MessagesPublished = %d; want 13", r.MessagesPublished)
	}
	if r.BytesPublished != 10*100+3*1024 {
		t.Errorf("BytesPublished = %d; want %d", r.BytesPublished, 10*100+3*1024)
	}
	if len(r.RecentLinkTests) != recentLimit {
		t.Fatalf("len(RecentLinkTests) = %d; want %d", len(r.RecentLinkTests), recentLimit)
	}
	if r.RecentLinkTests[0].RunID != "link-6" {
		t.Errorf("RecentLinkTests[0] = %s; want newest link-6", r.RecentLinkTests[0].RunID)
	}
	if len(r.RecentMessageTests) != 3 || r.RecentMessageTests[0].RunID != "m3" {
		t.Errorf("RecentMessageTests = %+v; want 3 newest first", r.RecentMessageTests)
	}
	if !r.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v; want %v", r.GeneratedAt, fixed)
	}
}

func TestBuildReport_Empty(t *testing.T) {
	svc := NewReportService(NewReportRepository(setupTestDB(t)))

	r, err := svc.BuildReport(context.Background())
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}
	if r.SlaveTotal != 0 || r.Connections != 0 || r.MessagesPublished != 0 || r.BytesPublished != 0 {
		t.Errorf("empty report has non-zero totals: %+v", r)
	}
	if len(r.Slaves) != 3 || len(r.LinkTests) != 4 || len(r.MessageTests) != 4 {
		t.Errorf("status maps = %v %v %v; want every known status", r.Slaves, r.LinkTests, r.MessageTests)
	}
}

type failingRepo struct {
	domain.ReportRepository
	err error
}

func (f failingRepo) SlaveStatusCounts(context.Context) ([]domain.StatusCount, error) {
	return nil, f.err
}

func TestBuildReport_RepositoryError(t *testing.T) {
	want := errors.New("boom")
	svc := NewReportService(failingRepo{err: want})

	if _, err := svc.BuildReport(context.Background()); !errors.Is(err, want) {
		t.Errorf("BuildReport() error = %v; want %v", err, want)
	}
}
