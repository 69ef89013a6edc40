package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// Store is object storage for call recordings and the greeting prompt.
type Store interface {
	Uploader
	Signer
	Exists(ctx context.Context, objectName string) (bool, error)
}

// Object names.
const GreetingObject = "prompts/greeting.wav"

func RecordingObject(callID string, seq int64, kind string) string {
	return fmt.Sprintf("calls/%s/%05d-%s.wav", callID, seq, kind)
}
