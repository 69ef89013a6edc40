package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role string
	Text string
}

type Request struct {
	System   string
	Messages []Message

	// Schema, when set, asks the model for a single JSON object that matches
	// it. SchemaName labels the schema for providers that need one.
	Schema     map[string]any
	SchemaName string
}

// Provider generates one complete text reply.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

var ErrEmptyCompletion = errors.New("llm returned no content")

// DecodeJSON unmarshals a model reply into v. Markdown fences and prose around
// the object are stripped, and malformed JSON is repaired before retrying.
func DecodeJSON(raw string, v any) error {
	body := extractObject(raw)
	if body == "" {
		return ErrEmptyCompletion
	}
	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(body)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}
