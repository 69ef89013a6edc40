package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/yoockh/callgate/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TranscriptRepository interface {
	Insert(ctx context.Context, entries ...*models.TranscriptEntry) error
	ListByCall(ctx context.Context, callID string, limit int) ([]models.TranscriptEntry, error)
	Similar(ctx context.Context, customerID string, embedding []float32, n int) ([]models.TranscriptEntry, error)
}

type transcriptRepo struct {
	db *gorm.DB
}

func NewTranscriptRepo(db *gorm.DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

func (r *transcriptRepo) Insert(ctx context.Context, entries ...*models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *transcriptRepo) ListByCall(ctx context.Context, callID string, limit int) ([]models.TranscriptEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []models.TranscriptEntry
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("seq ASC, timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Similar returns a customer's past transcript lines nearest to embedding by
// cosine distance.
func (r *transcriptRepo) Similar(ctx context.Context, customerID string, embedding []float32, n int) ([]models.TranscriptEntry, error) {
	if n <= 0 {
		n = 5
	}
	var rows []models.TranscriptEntry
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND embedding IS NOT NULL", customerID).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{pgvector.NewVector(embedding)}},
		}).
		Limit(n).
		Find(&rows).Error
	return rows, err
}
