package services

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/callgate/internal/models"
	pgrepo "github.com/yoockh/callgate/internal/repositories/postgres"
	"github.com/yoockh/callgate/internal/storage"
	"github.com/yoockh/callgate/internal/utils"
)

const wavMime = "audio/wav"

type RecordingService interface {
	Store(ctx context.Context, callID string, seq int64, kind string, wav []byte, duration time.Duration) (*models.CallRecording, error)
	ListByCall(ctx context.Context, callID string) ([]models.CallRecording, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	UploadGreeting(ctx context.Context, r io.Reader) (string, error)
	GreetingURL(ctx context.Context, ttl time.Duration) (string, bool)
}

type recordingService struct {
	repo  pgrepo.RecordingRepository
	store storage.Store
}

func NewRecordingService(repo pgrepo.RecordingRepository, store storage.Store) RecordingService {
	return &recordingService{repo: repo, store: store}
}

func (s *recordingService) Store(ctx context.Context, callID string, seq int64, kind string, wav []byte, duration time.Duration) (*models.CallRecording, error) {
	const op = "RecordingService.Store"

	if callID == "" || seq <= 0 || len(wav) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id, seq (>0) and audio are required", nil)
	}
	if kind != models.RecordingCaller && kind != models.RecordingReply {
		return nil, utils.E(utils.CodeInvalidArgument, op, "kind must be caller or reply", nil)
	}
	if s.store == nil {
		return nil, utils.E(utils.CodeInternal, op, "storage is not configured", nil)
	}

	storedPath, err := s.store.Upload(ctx, storage.RecordingObject(callID, seq, kind), wavMime, bytes.NewReader(wav))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to upload recording", err)
	}

	row := &models.CallRecording{
		ID:         uuid.NewString(),
		CallID:     callID,
		Seq:        seq,
		Kind:       kind,
		FilePath:   storedPath, // object key, not a public URL
		FileSize:   len(wav),
		MimeType:   wavMime,
		DurationMS: duration.Milliseconds(),
		UploadAt:   time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist recording metadata", err)
	}
	return row, nil
}

func (s *recordingService) ListByCall(ctx context.Context, callID string) ([]models.CallRecording, error) {
	const op = "RecordingService.ListByCall"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	rows, err := s.repo.ListByCall(ctx, callID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}
	return rows, nil
}

func (s *recordingService) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	const op = "RecordingService.SignedURL"

	if s.store == nil {
		return "", utils.E(utils.CodeUnavailable, op, "storage is not configured", nil)
	}
	url, err := s.store.SignedGetURL(ctx, path, ttl)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign url", err)
	}
	return url, nil
}

func (s *recordingService) UploadGreeting(ctx context.Context, r io.Reader) (string, error) {
	const op = "RecordingService.UploadGreeting"

	if s.store == nil {
		return "", utils.E(utils.CodeUnavailable, op, "storage is not configured", nil)
	}
	path, err := s.store.Upload(ctx, storage.GreetingObject, wavMime, r)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to upload greeting", err)
	}
	return path, nil
}

// GreetingURL returns a playable URL for the prerecorded greeting, if one has
// been uploaded.
func (s *recordingService) GreetingURL(ctx context.Context, ttl time.Duration) (string, bool) {
	if s.store == nil {
		return "", false
	}
	ok, err := s.store.Exists(ctx, storage.GreetingObject)
	if err != nil || !ok {
		return "", false
	}
	url, err := s.store.SignedGetURL(ctx, storage.GreetingObject, ttl)
	if err != nil {
		return "", false
	}
	return url, true
}
