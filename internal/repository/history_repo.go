package repository

import (
	"context"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryRepository persists run records. It implements
// service.HistoryStore.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts one run record.
func (r *HistoryRepository) Append(ctx context.Context, record *domain.RunRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Upsert inserts the record or replaces an existing one with the same id.
// Used when refreshing the cache from the backend's persisted history.
func (r *HistoryRepository) Upsert(ctx context.Context, record *domain.RunRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

// List returns run records ordered newest first.
func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]domain.RunRecord, error) {
	var records []domain.RunRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Clear deletes every run record.
func (r *HistoryRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&domain.RunRecord{}).Error
}
