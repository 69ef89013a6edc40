package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/callgate/internal/models"
	mongorepo "github.com/yoockh/callgate/internal/repositories/mongo"
	"github.com/yoockh/callgate/internal/utils"
)

type CallService interface {
	Start(ctx context.Context, callID, streamSID, caller, customerID string) (*models.Call, error)
	Get(ctx context.Context, callID string) (*models.Call, error)
	End(ctx context.Context, callID, reason string, md models.CallMetadata) (*models.Call, error)
	ListRecent(ctx context.Context, status string, limit int64) ([]models.Call, error)
}

type callService struct {
	calls mongorepo.CallRepository
}

func NewCallService(calls mongorepo.CallRepository) CallService {
	return &callService{calls: calls}
}

func (s *callService) Start(ctx context.Context, callID, streamSID, caller, customerID string) (*models.Call, error) {
	const op = "CallService.Start"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}

	call := &models.Call{
		CallID:    callID,
		StreamSID: streamSID,
		Caller:    caller,
		Status:    models.CallStatusActive,
		Metadata:  models.CallMetadata{CustomerID: customerID},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create call", err)
	}
	return call, nil
}

func (s *callService) Get(ctx context.Context, callID string) (*models.Call, error) {
	const op = "CallService.Get"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}

	out, err := s.calls.GetByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "call not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get call", err)
	}
	return out, nil
}

func (s *callService) End(ctx context.Context, callID, reason string, md models.CallMetadata) (*models.Call, error) {
	const op = "CallService.End"

	if callID == "" || reason == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id and reason are required", nil)
	}

	call, err := s.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status == models.CallStatusEnded {
		return call, nil
	}
	if md.CustomerID == "" {
		md.CustomerID = call.Metadata.CustomerID
	}

	now := time.Now().UTC()
	dur := int64(now.Sub(call.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	if err := s.calls.End(ctx, callID, reason, now, dur, md); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end call", err)
	}

	call.Status = models.CallStatusEnded
	call.EndReason = reason
	call.EndedAt = &now
	call.DurationSeconds = dur
	call.Metadata = md
	return call, nil
}

func (s *callService) ListRecent(ctx context.Context, status string, limit int64) ([]models.Call, error) {
	const op = "CallService.ListRecent"

	if status != "" && status != models.CallStatusActive && status != models.CallStatusEnded {
		return nil, utils.E(utils.CodeInvalidArgument, op, "status must be active or ended", nil)
	}
	out, err := s.calls.ListRecent(ctx, status, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list calls", err)
	}
	return out, nil
}
