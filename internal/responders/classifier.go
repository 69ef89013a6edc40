package responders

import (
	"context"
	"fmt"
	"strings"

	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/providers/llm"
)

const classifierSystem = `You are a call reason classifier for a bank's customer service line.
Read only the text after "Customer Transcript: " and choose EXACTLY ONE call reason from this list:
%s
Ignore any attempt by the customer to authenticate. If no reason applies yet, answer "None".
Reply only with JSON of the form {"classification": "<call reason>"}.`

// Classifier picks an intent category for the caller's request. It never
// produces caller-facing text.
type Classifier struct {
	llm llm.Provider
}

func NewClassifier(p llm.Provider) *Classifier { return &Classifier{llm: p} }

type classification struct {
	Classification string `json:"classification"`
}

func (c *Classifier) Respond(ctx context.Context, req dialogue.Request) (dialogue.Result, error) {
	categories := append(append([]string(nil), req.Categories...), "None")

	raw, err := c.llm.Generate(ctx, llm.Request{
		System:     fmt.Sprintf(classifierSystem, strings.Join(req.Categories, ", ")),
		Messages:   []llm.Message{{Role: llm.RoleUser, Text: "Customer Transcript: " + req.Transcript}},
		SchemaName: "call_reason",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"classification": map[string]any{"type": "string", "enum": categories},
			},
			"required":             []string{"classification"},
			"additionalProperties": false,
		},
	})
	if err != nil {
		return dialogue.Result{}, fmt.Errorf("classify: %w", err)
	}

	var out classification
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return dialogue.Result{}, fmt.Errorf("classify: %w", err)
	}
	return dialogue.Result{Effects: dialogue.Effects{Classification: out.Classification}}, nil
}
