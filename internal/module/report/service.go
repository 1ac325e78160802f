package report

import (
	"context"
	"time"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// recentLimit is how many of the latest tests a report lists.
const recentLimit = 5

type reportService struct {
	repo domain.ReportRepository
	now  func() time.Time
}

// NewReportService creates a ReportService with the given repository.
func NewReportService(repo domain.ReportRepository) domain.ReportService {
	return &reportService{repo: repo, now: time.Now}
}

// BuildReport runs every aggregate query and assembles the result. Every
// known status appears in the count maps, zero when absent.
func (s *reportService) BuildReport(ctx context.Context) (*domain.Report, error) {
	slaveCounts, err := s.repo.SlaveStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	connections, err := s.repo.TotalConnections(ctx)
	if err != nil {
		return nil, err
	}
	linkCounts, err := s.repo.LinkTestStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	messageCounts, err := s.repo.MessageTestStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	messages, bytes, err := s.repo.PublishedTotals(ctx)
	if err != nil {
		return nil, err
	}
	recentLinks, err := s.repo.RecentLinkTests(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	recentMessages, err := s.repo.RecentMessageTests(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	slaves, total := countMap(slaveCounts, domain.SlaveOnline, domain.SlaveOffline, domain.SlaveRunning)
	links, _ := countMap(linkCounts, runStates...)
	msgs, _ := countMap(messageCounts, runStates...)

	return &domain.Report{
		Slaves:             slaves,
		SlaveTotal:         total,
		Connections:        connections,
		LinkTests:          links,
		MessageTests:       msgs,
		MessagesPublished:  messages,
		BytesPublished:     bytes,
		RecentLinkTests:    recentLinks,
		RecentMessageTests: recentMessages,
		GeneratedAt:        s.now(),
	}, nil
}

var runStates = []string{domain.RunPending, domain.RunRunning, domain.RunCompleted, domain.RunFailed}

func countMap(rows []domain.StatusCount, known ...string) (map[string]int64, int64) {
	m := make(map[string]int64, len(known))
	for _, k := range known {
		m[k] = 0
	}
	var total int64
	for _, r := range rows {
		m[r.Status] += r.Count
		total += r.Count
	}
	return m, total
}
