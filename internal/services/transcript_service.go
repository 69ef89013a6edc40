package services

import (
	"context"
	"time"

	"github.com/yoockh/callgate/internal/models"
	pgrepo "github.com/yoockh/callgate/internal/repositories/postgres"
	"github.com/yoockh/callgate/internal/utils"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type TranscriptLine struct {
	Speaker   string
	Content   string
	Embedding []float32
}

type TranscriptService interface {
	Append(ctx context.Context, callID, customerID string, seq int64, lines []TranscriptLine, metadataJSON []byte) ([]models.TranscriptEntry, error)
	ListByCall(ctx context.Context, callID string, limit int) ([]models.TranscriptEntry, error)
}

type transcriptService struct {
	entries pgrepo.TranscriptRepository
}

func NewTranscriptService(entries pgrepo.TranscriptRepository) TranscriptService {
	return &transcriptService{entries: entries}
}

func (s *transcriptService) Append(ctx context.Context, callID, customerID string, seq int64, lines []TranscriptLine, metadataJSON []byte) ([]models.TranscriptEntry, error) {
	const op = "TranscriptService.Append"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}

	var cust *string
	if customerID != "" {
		cust = &customerID
	}
	if len(metadataJSON) == 0 {
		metadataJSON = []byte(`{}`)
	}

	now := time.Now().UTC()
	rows := make([]*models.TranscriptEntry, 0, len(lines))
	for i, l := range lines {
		if l.Content == "" || l.Speaker == "" {
			continue
		}
		row := &models.TranscriptEntry{
			ID:         uuid.NewString(),
			CallID:     callID,
			CustomerID: cust,
			Seq:        seq,
			Speaker:    l.Speaker,
			Content:    l.Content,
			Timestamp:  now.Add(time.Duration(i) * time.Millisecond),
			Metadata:   datatypes.JSON(metadataJSON),
		}
		if len(l.Embedding) > 0 {
			v := pgvector.NewVector(l.Embedding)
			row.Embedding = &v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := s.entries.Insert(ctx, rows...); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert transcript entries", err)
	}
	out := make([]models.TranscriptEntry, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

func (s *transcriptService) ListByCall(ctx context.Context, callID string, limit int) ([]models.TranscriptEntry, error) {
	const op = "TranscriptService.ListByCall"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}

	rows, err := s.entries.ListByCall(ctx, callID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list transcript", err)
	}
	return rows, nil
}
