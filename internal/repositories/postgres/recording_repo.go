package postgres

import (
	"context"

	"github.com/yoockh/callgate/internal/models"
	"gorm.io/gorm"
)

type RecordingRepository interface {
	Insert(ctx context.Context, f *models.CallRecording) error
	ListByCall(ctx context.Context, callID string) ([]models.CallRecording, error)
}

type recordingRepo struct {
	db *gorm.DB
}

func NewRecordingRepo(db *gorm.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

func (r *recordingRepo) Insert(ctx context.Context, f *models.CallRecording) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *recordingRepo) ListByCall(ctx context.Context, callID string) ([]models.CallRecording, error) {
	var rows []models.CallRecording
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("seq ASC, kind ASC").
		Find(&rows).Error
	return rows, err
}
