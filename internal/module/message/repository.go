package message

import (
	"context"

	"gorm.io/gorm"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

var listOptions = pkg.ListOptions{
	SortFields:   []string{"id", "status", "topic", "payload_size", "count", "created_at"},
	FilterFields: []string{"status", "topic", "message_type", "run_id"},
	DefaultSort:  "id:desc",
}

// messageTestRepository implements domain.MessageTestRepository using GORM.
type messageTestRepository struct {
	db *gorm.DB
}

// NewMessageTestRepository creates a new MessageTestRepository backed by the given GORM database.
func NewMessageTestRepository(db *gorm.DB) domain.MessageTestRepository {
	return &messageTestRepository{db: db}
}

func (r *messageTestRepository) Create(ctx context.Context, test *domain.MessageTest) error {
	return pkg.MapDBError(r.db.WithContext(ctx).Create(test).Error)
}

func (r *messageTestRepository) GetByID(ctx context.Context, id uint) (*domain.MessageTest, error) {
	var test domain.MessageTest
	if err := r.db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, pkg.MapDBError(err)
	}
	return &test, nil
}

func (r *messageTestRepository) List(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.MessageTest], error) {
	return pkg.FindPage[domain.MessageTest](ctx, r.db, req, listOptions)
}

func (r *messageTestRepository) Update(ctx context.Context, test *domain.MessageTest) error {
	return pkg.MapDBError(r.db.WithContext(ctx).Save(test).Error)
}

func (r *messageTestRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.MessageTest{}, id)
	if result.Error != nil {
		return pkg.MapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
