package responders

import (
	"context"
	"fmt"
	"strings"

	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/providers/llm"
)

const assistantSystem = `You are a customer service specialist for a bank, speaking with a customer on the phone.
Be friendly and helpful, and restate what the customer said so they know you heard them.
The customer has already been verified; do not mention verification.
Answer from the account facts below when they apply. If something is not covered, say you will follow up rather than inventing figures.
If the customer asks to update account information, make sure they have given you the new values.
Your reply will be spoken aloud: answer in plain full sentences in English, without lists, markdown or placeholders.`

// historyTurns bounds the transcript sent with each assistant request.
const historyTurns = 12

// Assistant answers the caller's request once they are sufficiently
// authenticated.
type Assistant struct {
	llm       llm.Provider
	directory Directory
}

func NewAssistant(p llm.Provider, d Directory) *Assistant {
	return &Assistant{llm: p, directory: d}
}

func (a *Assistant) Respond(ctx context.Context, req dialogue.Request) (dialogue.Result, error) {
	system := assistantSystem
	if req.State.Classification != "" {
		system += "\n\nCall reason: " + req.State.Classification
	}

	if a.directory != nil {
		customer, err := lookupCustomer(ctx, a.directory, req.Caller)
		if err != nil {
			return dialogue.Result{}, err
		}
		if customer != nil {
			system += "\n\nCustomer name: " + customer.FullName
			if len(customer.AccountSummary) > 0 {
				system += "\nAccount facts (JSON): " + string(customer.AccountSummary)
			}
		}
	}

	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == dialogue.RoleAgent {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Text: t.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Text: req.Transcript})

	raw, err := a.llm.Generate(ctx, llm.Request{System: system, Messages: msgs})
	if err != nil {
		return dialogue.Result{}, fmt.Errorf("assistant: %w", err)
	}
	reply := Sanitize(raw)
	if strings.TrimSpace(reply) == "" {
		return dialogue.Result{}, fmt.Errorf("assistant: %w", llm.ErrEmptyCompletion)
	}
	return dialogue.Result{Reply: reply}, nil
}
