package adapters

import (
	"time"

	"deepfake_backend/internal/feature/detection/domain/entity"
)

// DetectionModel is the GORM model for the detections table.
type DetectionModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Kind        string    `gorm:"size:16;index;not null"`
	Filename    string    `gorm:"size:255"`
	ContentType string    `gorm:"size:128"`
	SizeBytes   int64     `gorm:"not null"`
	Digest      string    `gorm:"size:64;index"`
	Prediction  string    `gorm:"size:64;not null"`
	Confidence  float64   `gorm:"not null"`
	Status      string    `gorm:"size:16;not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

// TableName returns the table name for GORM.
func (DetectionModel) TableName() string {
	return "detections"
}

// ToEntity converts the GORM model to a domain entity.
func (m *DetectionModel) ToEntity() entity.DetectionRecord {
	return entity.DetectionRecord{
		ID:          m.ID,
		Kind:        entity.Kind(m.Kind),
		Filename:    m.Filename,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
		Digest:      m.Digest,
		Prediction:  m.Prediction,
		Confidence:  m.Confidence,
		Status:      entity.Status(m.Status),
		CreatedAt:   m.CreatedAt,
	}
}

// DetectionModelFromEntity converts a domain entity to a GORM model.
func DetectionModelFromEntity(r *entity.DetectionRecord) *DetectionModel {
	return &DetectionModel{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Filename:    r.Filename,
		ContentType: r.ContentType,
		SizeBytes:   r.SizeBytes,
		Digest:      r.Digest,
		Prediction:  r.Prediction,
		Confidence:  r.Confidence,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}
