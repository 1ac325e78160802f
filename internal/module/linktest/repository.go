package linktest

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

// listOptions lists the columns clients may sort and filter link tests by.
var listOptions = pkg.ListOptions{
	SortFields:   []string{"id", "status", "test_duration", "message_rate", "created_at"},
	FilterFields: []string{"status", "run_id"},
	DefaultSort:  "id:desc",
}

// linkTestRepository implements domain.LinkTestRepository using GORM.
type linkTestRepository struct {
	db *gorm.DB
}

// NewLinkTestRepository creates a new LinkTestRepository backed by the given GORM database.
func NewLinkTestRepository(db *gorm.DB) domain.LinkTestRepository {
	return &linkTestRepository{db: db}
}

// Create inserts a new link test.
func (r *linkTestRepository) Create(ctx context.Context, test *domain.LinkTest) error {
	return pkg.MapDBError(r.db.WithContext(ctx).Create(test).Error)
}

// GetByID retrieves a link test by its primary key.
func (r *linkTestRepository) GetByID(ctx context.Context, id uint) (*domain.LinkTest, error) {
	var test domain.LinkTest
	if err := r.db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, pkg.MapDBError(err)
	}
	return &test, nil
}

// List returns a page of link tests, newest first unless another sort is requested.
func (r *linkTestRepository) List(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.LinkTest], error) {
	return pkg.FindPage[domain.LinkTest](ctx, r.db, req, listOptions)
}

// Update saves every field of an existing link test.
func (r *linkTestRepository) Update(ctx context.Context, test *domain.LinkTest) error {
	return pkg.MapDBError(r.db.WithContext(ctx).Save(test).Error)
}

// Delete removes a link test by ID.
func (r *linkTestRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.LinkTest{}, id)
	if result.Error != nil {
		return pkg.MapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FailRunning ends every running test as failed in one statement.
func (r *linkTestRepository) FailRunning(ctx context.Context, end time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.LinkTest{}).
		Where("status = ?", domain.RunRunning).
		Updates(map[string]any{"status": domain.RunFailed, "end_time": end})
	if result.Error != nil {
		return 0, pkg.MapDBError(result.Error)
	}
	return result.RowsAffected, nil
}
