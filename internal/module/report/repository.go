package report

import (
	"context"

	"gorm.io/gorm"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

// reportRepository implements domain.ReportRepository with aggregate queries.
type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new ReportRepository backed by the given GORM database.
func NewReportRepository(db *gorm.DB) domain.ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) SlaveStatusCounts(ctx context.Context) ([]domain.StatusCount, error) {
	return r.statusCounts(ctx, &domain.Slave{})
}

func (r *reportRepository) LinkTestStatusCounts(ctx context.Context) ([]domain.StatusCount, error) {
	return r.statusCounts(ctx, &domain.LinkTest{})
}

func (r *reportRepository) MessageTestStatusCounts(ctx context.Context) ([]domain.StatusCount, error) {
	return r.statusCounts(ctx, &domain.MessageTest{})
}

func (r *reportRepository) statusCounts(ctx context.Context, model any) ([]domain.StatusCount, error) {
	var rows []domain.StatusCount
	err := r.db.WithContext(ctx).Model(model).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, pkg.MapDBError(err)
	}
	return rows, nil
}

// TotalConnections sums the connections reported by all slaves.
func (r *reportRepository) TotalConnections(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.Slave{}).
		Select("COALESCE(SUM(connections), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, pkg.MapDBError(err)
	}
	return total, nil
}

// PublishedTotals sums messages and payload bytes over all message tests.
func (r *reportRepository) PublishedTotals(ctx context.Context) (messages, bytes int64, err error) {
	var totals struct {
		Messages int64
		Bytes    int64
	}
	err = r.db.WithContext(ctx).Model(&domain.MessageTest{}).
		Select("COALESCE(SUM(published), 0) AS messages, COALESCE(SUM(published * payload_size), 0) AS bytes").
		Scan(&totals).Error
	if err != nil {
		return 0, 0, pkg.MapDBError(err)
	}
	return totals.Messages, totals.Bytes, nil
}

func (r *reportRepository) RecentLinkTests(ctx context.Context, limit int) ([]domain.LinkTest, error) {
	var tests []domain.LinkTest
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&tests).Error; err != nil {
		return nil, pkg.MapDBError(err)
	}
	return tests, nil
}

func (r *reportRepository) RecentMessageTests(ctx context.Context, limit int) ([]domain.MessageTest, error) {
	var tests []domain.MessageTest
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&tests).Error; err != nil {
		return nil, pkg.MapDBError(err)
	}
	return tests, nil
}
