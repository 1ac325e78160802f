package slave

import (
	"context"
	"time"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
	"gorm.io/gorm"
)

var listOptions = pkg.ListOptions{
	SortFields:   []string{"id", "name", "status", "connections", "last_seen_at", "created_at"},
	FilterFields: []string{"name", "status", "mqtt_host", "topic"},
	DefaultSort:  "id:asc",
}

// slaveRepository implements domain.SlaveRepository using GORM.
type slaveRepository struct {
	db *gorm.DB
}

// NewSlaveRepository creates a new SlaveRepository backed by the given GORM database.
func NewSlaveRepository(db *gorm.DB) domain.SlaveRepository {
	return &slaveRepository{db: db}
}

// Create inserts a new slave. A zero ID is assigned by the database.
func (r *slaveRepository) Create(ctx context.Context, slave *domain.Slave) error {
	return pkg.MapDBError(r.db.WithContext(ctx).Create(slave).Error)
}

// GetByID retrieves a slave by its primary key.
func (r *slaveRepository) GetByID(ctx context.Context, id int64) (*domain.Slave, error) {
	var slave domain.Slave
	if err := r.db.WithContext(ctx).First(&slave, id).Error; err != nil {
		return nil, pkg.MapDBError(err)
	}
	return &slave, nil
}

// List returns a paginated, sorted, and filtered list of slaves.
func (r *slaveRepository) List(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.Slave], error) {
	return pkg.FindPage[domain.Slave](ctx, r.db, req, listOptions)
}

// All returns every slave ordered by ID.
func (r *slaveRepository) All(ctx context.Context) ([]domain.Slave, error) {
	var slaves []domain.Slave
	if err := r.db.WithContext(ctx).Order("id asc").Find(&slaves).Error; err != nil {
		return nil, pkg.MapDBError(err)
	}
	return slaves, nil
}

// Update writes the named columns of slave, or every column when none are named.
// Zero values in named columns are written.
func (r *slaveRepository) Update(ctx context.Context, slave *domain.Slave, columns ...string) error {
	db := r.db.WithContext(ctx).Model(slave)
	if len(columns) == 0 {
		return pkg.MapDBError(r.db.WithContext(ctx).Save(slave).Error)
	}

	result := db.Select(columns).Updates(slave)
	if result.Error != nil {
		return pkg.MapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkOffline flips every non-offline slave last seen before cutoff to offline.
func (r *slaveRepository) MarkOffline(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Slave{}).
			Where("status <> ? AND last_seen_at < ?", domain.SlaveOffline, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.Slave{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":      domain.SlaveOffline,
				"connections": 0,
			}).Error
	})
	if err != nil {
		return nil, pkg.MapDBError(err)
	}
	return ids, nil
}

// Delete removes a slave by ID.
func (r *slaveRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&domain.Slave{}, id)
	if result.Error != nil {
		return pkg.MapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
