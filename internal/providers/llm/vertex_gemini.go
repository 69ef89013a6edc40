package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// Generate streams the reply and joins the text parts.
func (v *VertexGemini) Generate(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", ErrEmptyCompletion
	}

	// GenerativeModel carries per-request settings, so each call gets its own.
	m := v.client.GenerativeModel(v.modelName)
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.System)}}
	}
	if req.Schema != nil {
		m.ResponseMIMEType = "application/json"
	}

	cs := m.StartChat()
	last := len(req.Messages) - 1
	for _, msg := range req.Messages[:last] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &vertexgenai.Content{
			Role:  role,
			Parts: []vertexgenai.Part{vertexgenai.Text(msg.Text)},
		})
	}

	var sb strings.Builder
	it := cs.SendMessageStream(ctx, vertexgenai.Text(req.Messages[last].Text))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok && string(t) != "" {
					sb.WriteString(string(t))
				}
			}
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
