// Package adapters provides repository implementations for the detection feature.
package adapters

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"deepfake_backend/internal/feature/detection/domain/entity"
	"deepfake_backend/internal/feature/detection/usecase"
)

// historyGorm is a GORM implementation of the HistoryRepository interface.
type historyGorm struct {
	db *gorm.DB
}

// Compile-time check to ensure historyGorm implements HistoryRepository.
var _ usecase.HistoryRepository = (*historyGorm)(nil)

// NewHistoryGorm creates a new instance of historyGorm.
func NewHistoryGorm(db *gorm.DB) *historyGorm {
	return &historyGorm{db: db}
}

// Create persists a detection record.
func (r *historyGorm) Create(ctx context.Context, rec *entity.DetectionRecord) error {
	if rec == nil {
		return errors.New("detection record is nil")
	}
	return r.db.WithContext(ctx).Create(DetectionModelFromEntity(rec)).Error
}

// Recent returns up to limit records, newest first.
func (r *historyGorm) Recent(ctx context.Context, limit int) ([]entity.DetectionRecord, error) {
	var models []DetectionModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]entity.DetectionRecord, len(models))
	for i := range models {
		records[i] = models[i].ToEntity()
	}
	return records, nil
}
