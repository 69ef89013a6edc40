package services

import (
	"context"
	"time"

	"github.com/yoockh/callgate/internal/models"
	mongorepo "github.com/yoockh/callgate/internal/repositories/mongo"
	"github.com/yoockh/callgate/internal/utils"
)

type UtteranceService interface {
	Record(ctx context.Context, u *models.Utterance) error
	ListByCall(ctx context.Context, callID string, limit int64) ([]models.Utterance, error)
}

type utteranceService struct {
	utterances mongorepo.UtteranceRepository
	ttl        time.Duration
}

func NewUtteranceService(utterances mongorepo.UtteranceRepository, ttl time.Duration) UtteranceService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &utteranceService{utterances: utterances, ttl: ttl}
}

func (s *utteranceService) Record(ctx context.Context, u *models.Utterance) error {
	const op = "UtteranceService.Record"

	if u == nil || u.CallID == "" || u.Seq <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "call_id is required and seq must be > 0", nil)
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	u.ExpiresAt = u.Timestamp.Add(s.ttl)

	if err := s.utterances.Upsert(ctx, u); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record utterance", err)
	}
	return nil
}

func (s *utteranceService) ListByCall(ctx context.Context, callID string, limit int64) ([]models.Utterance, error) {
	const op = "UtteranceService.ListByCall"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	out, err := s.utterances.ListByCall(ctx, callID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list utterances", err)
	}
	return out, nil
}
