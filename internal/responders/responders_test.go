package responders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/providers/llm"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/utils"
)

type fakeLLM struct {
	replies []string
	err     error
	calls   []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", llm.ErrEmptyCompletion
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeLLM) Close() error { return nil }

type fakeDirectory struct {
	customer *models.Customer
	card     string
	address  services.Address
}

func (d *fakeDirectory) FindByPhone(_ context.Context, phone string) (*models.Customer, error) {
	if d.customer == nil {
		return nil, utils.E(utils.CodeNotFound, "fake.FindByPhone", "customer not found", utils.ErrNotFound)
	}
	return d.customer, nil
}

func (d *fakeDirectory) VerifyCardLast4(_ *models.Customer, candidate string) bool {
	return candidate == d.card
}

func (d *fakeDirectory) VerifyAddress(_ *models.Customer, a services.Address) bool {
	return utils.NormalizeAddress(a.Street, a.City, a.State, a.Zip) ==
		utils.NormalizeAddress(d.address.Street, d.address.City, d.address.State, d.address.Zip)
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		customer: &models.Customer{
			ID:             "c-1",
			FullName:       "Jane Doe",
			AccountSummary: datatypes.JSON(`{"checking_balance":"1520.33"}`),
		},
		card:    "4821",
		address: services.Address{Street: "12 Main Street", City: "Columbus", State: "OH", Zip: "43004"},
	}
}

// afterCardPrompt is a request answering the card digits prompt.
func afterCardPrompt(transcript string) dialogue.Request {
	req := request(dialogue.LowRiskAuthenticator, transcript)
	req.History = []dialogue.Turn{
		{Role: dialogue.RoleCaller, Text: "I need to check my balance"},
		{Role: dialogue.RoleAgent, Text: replyAskCard},
	}
	return req
}

func request(r dialogue.Responder, transcript string) dialogue.Request {
	return dialogue.Request{
		Responder:  r,
		CallID:     "CA1",
		Caller:     "+15550100",
		Transcript: transcript,
		Categories: []string{"Check Balance", "Report Fraud"},
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "  Your balance is $20.  ", "Your balance is $20."},
		{"think", "<think>reasoning</think> Hello there.", "Hello there."},
		{"terminate", "All done. TERMINATE extra", "All done."},
		{"bold", "**Note:** Your card is active.", "Your card is active."},
		{"non ascii", "Thanks 😊 for calling", "Thanks for calling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSpokenLast4(t *testing.T) {
	assert.Equal(t, "4821", spokenLast4("sure it's 4821"))
	assert.Equal(t, "4821", spokenLast4("4 8 2 1"))
	assert.Equal(t, "4821", spokenLast4("four eight two one."))
	assert.Equal(t, "4821", spokenLast4("the card 5555-4444-3333-4821"))
	assert.Equal(t, "", spokenLast4("I need to check my balance"))
	assert.Equal(t, "", spokenLast4("it ends in 48"))
}

func TestClassifier(t *testing.T) {
	model := &fakeLLM{replies: []string{"```json\n{\"classification\": \"Check Balance\"}\n```"}}
	res, err := NewClassifier(model).Respond(context.Background(), request(dialogue.Classifier, "I need to check my balance"))

	require.NoError(t, err)
	assert.Equal(t, "Check Balance", res.Effects.Classification)
	assert.Empty(t, res.Reply)

	require.Len(t, model.calls, 1)
	assert.Contains(t, model.calls[0].System, "Check Balance, Report Fraud")
	assert.Equal(t, "Customer Transcript: I need to check my balance", model.calls[0].Messages[0].Text)
	assert.NotNil(t, model.calls[0].Schema)
}

func TestClassifierFailure(t *testing.T) {
	_, err := NewClassifier(&fakeLLM{err: errors.New("unavailable")}).
		Respond(context.Background(), request(dialogue.Classifier, "hello"))
	assert.Error(t, err)
}

func TestCardAuthenticator(t *testing.T) {
	ctx := context.Background()

	t.Run("prompts without a candidate", func(t *testing.T) {
		model := &fakeLLM{}
		res, err := NewCardAuthenticator(model, newDirectory()).Respond(ctx, request(dialogue.LowRiskAuthenticator, "I need to check my balance"))
		require.NoError(t, err)
		assert.Equal(t, replyAskCard, res.Reply)
		assert.False(t, res.Effects.Verified)
		assert.Empty(t, model.calls)
	})

	t.Run("verifies matching digits", func(t *testing.T) {
		res, err := NewCardAuthenticator(&fakeLLM{}, newDirectory()).Respond(ctx, afterCardPrompt("It's 4 8 2 1."))
		require.NoError(t, err)
		assert.True(t, res.Effects.Verified)
		assert.Empty(t, res.Reply)
	})

	t.Run("rejects without revealing the value", func(t *testing.T) {
		res, err := NewCardAuthenticator(&fakeLLM{}, newDirectory()).Respond(ctx, afterCardPrompt("1234"))
		require.NoError(t, err)
		assert.False(t, res.Effects.Verified)
		assert.Equal(t, replyCardMismatch, res.Reply)
		assert.NotContains(t, res.Reply, "4821")
	})

	t.Run("falls back to extraction", func(t *testing.T) {
		model := &fakeLLM{replies: []string{`{"last4": "48 21"}`}}
		res, err := NewCardAuthenticator(model, newDirectory()).Respond(ctx, afterCardPrompt("first two are 48 and then 21"))
		require.NoError(t, err)
		assert.True(t, res.Effects.Verified)
		assert.Len(t, model.calls, 1)
	})

	t.Run("numbers in a first request are not card digits", func(t *testing.T) {
		for _, transcript := range []string{
			"Why was I charged a fee in 2024",
			"I was charged about 300 0 dollars",
		} {
			model := &fakeLLM{}
			res, err := NewCardAuthenticator(model, newDirectory()).Respond(ctx, request(dialogue.LowRiskAuthenticator, transcript))
			require.NoError(t, err)
			assert.Equal(t, replyAskCard, res.Reply, transcript)
			assert.False(t, res.Effects.Verified)
			assert.Empty(t, model.calls)
		}
	})

	t.Run("volunteered card digits verify without a prompt", func(t *testing.T) {
		res, err := NewCardAuthenticator(&fakeLLM{}, newDirectory()).Respond(ctx, request(dialogue.LowRiskAuthenticator, "My card ends in 4821, what's my balance?"))
		require.NoError(t, err)
		assert.True(t, res.Effects.Verified)
	})

	t.Run("retry after a mismatch", func(t *testing.T) {
		req := request(dialogue.LowRiskAuthenticator, "4821")
		req.History = []dialogue.Turn{
			{Role: dialogue.RoleCaller, Text: "1234"},
			{Role: dialogue.RoleAgent, Text: replyCardMismatch},
		}
		res, err := NewCardAuthenticator(&fakeLLM{}, newDirectory()).Respond(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.Effects.Verified)
	})

	t.Run("unknown caller", func(t *testing.T) {
		res, err := NewCardAuthenticator(&fakeLLM{}, &fakeDirectory{}).Respond(ctx, request(dialogue.LowRiskAuthenticator, "4821"))
		require.NoError(t, err)
		assert.Equal(t, replyNoAccount, res.Reply)
		assert.False(t, res.Effects.Verified)
	})
}

func TestAddressAuthenticator(t *testing.T) {
	ctx := context.Background()

	t.Run("verifies full address", func(t *testing.T) {
		model := &fakeLLM{replies: []string{`{"street":"12 Main St.","city":"columbus","state":"Ohio","zip":"43004"}`}}
		res, err := NewAddressAuthenticator(model, newDirectory()).Respond(ctx, request(dialogue.HighRiskAuthenticator, "12 Main St, Columbus Ohio 43004"))
		require.NoError(t, err)
		assert.True(t, res.Effects.Verified)
		assert.Empty(t, res.Reply)
	})

	t.Run("asks for missing parts", func(t *testing.T) {
		model := &fakeLLM{replies: []string{`{"street":"12 Main Street","city":"Columbus","state":"","zip":""}`}}
		res, err := NewAddressAuthenticator(model, newDirectory()).Respond(ctx, request(dialogue.HighRiskAuthenticator, "12 Main Street in Columbus"))
		require.NoError(t, err)
		assert.False(t, res.Effects.Verified)
		assert.Contains(t, res.Reply, "state and zip code")
	})

	t.Run("prompts when nothing given", func(t *testing.T) {
		model := &fakeLLM{replies: []string{`{"street":"","city":"","state":"","zip":""}`}}
		res, err := NewAddressAuthenticator(model, newDirectory()).Respond(ctx, request(dialogue.HighRiskAuthenticator, "I want to report fraud"))
		require.NoError(t, err)
		assert.Equal(t, replyAskAddress, res.Reply)
	})

	t.Run("mismatch", func(t *testing.T) {
		model := &fakeLLM{replies: []string{`{"street":"99 Elm Street","city":"Columbus","state":"OH","zip":"43004"}`}}
		res, err := NewAddressAuthenticator(model, newDirectory()).Respond(ctx, request(dialogue.HighRiskAuthenticator, "99 Elm Street Columbus OH 43004"))
		require.NoError(t, err)
		assert.False(t, res.Effects.Verified)
		assert.Equal(t, replyAddrMismatch, res.Reply)
	})

	t.Run("uses recent caller turns", func(t *testing.T) {
		model := &fakeLLM{replies: []string{`{}`}}
		req := request(dialogue.HighRiskAuthenticator, "43004")
		req.History = []dialogue.Turn{
			{Role: dialogue.RoleCaller, Text: "12 Main Street"},
			{Role: dialogue.RoleAgent, Text: "Thanks, and the rest?"},
		}
		_, err := NewAddressAuthenticator(model, newDirectory()).Respond(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "12 Main Street\n43004", model.calls[0].Messages[0].Text)
	})
}

func TestAssistant(t *testing.T) {
	model := &fakeLLM{replies: []string{"<think>hm</think>Your checking balance is $1,520.33. TERMINATE"}}
	req := request(dialogue.Assistant, "what's my balance")
	req.State.Classification = "Check Balance"
	req.History = []dialogue.Turn{
		{Role: dialogue.RoleCaller, Text: "I need to check my balance"},
		{Role: dialogue.RoleAgent, Text: "Please tell me the last four digits."},
	}

	res, err := NewAssistant(model, newDirectory()).Respond(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Your checking balance is $1,520.33.", res.Reply)

	sent := model.calls[0]
	assert.Contains(t, sent.System, "checking_balance")
	assert.Contains(t, sent.System, "Call reason: Check Balance")
	require.Len(t, sent.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, sent.Messages[1].Role)
	assert.Equal(t, "what's my balance", sent.Messages[2].Text)
}

func TestAssistantEmptyReplyIsError(t *testing.T) {
	model := &fakeLLM{replies: []string{"**only bold**"}}
	_, err := NewAssistant(model, nil).Respond(context.Background(), request(dialogue.Assistant, "hi"))
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

type stubResponder struct{ res dialogue.Result }

func (s stubResponder) Respond(context.Context, dialogue.Request) (dialogue.Result, error) {
	return s.res, nil
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(RouterConfig{
		Classifier: stubResponder{dialogue.Result{Effects: dialogue.Effects{Classification: "Check Balance"}}},
		Assistant:  stubResponder{dialogue.Result{Reply: "hello"}},
	})

	res, err := r.Invoke(context.Background(), request(dialogue.Classifier, "x"))
	require.NoError(t, err)
	assert.Equal(t, "Check Balance", res.Effects.Classification)

	res, err = r.Invoke(context.Background(), request(dialogue.Assistant, "x"))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Reply)

	_, err = r.Invoke(context.Background(), request(dialogue.LowRiskAuthenticator, "x"))
	assert.Error(t, err)
}

// The router drives the orchestrator through the balance scenario end to end.
func TestRouterWithOrchestrator(t *testing.T) {
	dir := newDirectory()
	classifierLLM := &fakeLLM{replies: []string{`{"classification":"Check Balance"}`}}
	assistantLLM := &fakeLLM{replies: []string{"Your checking balance is 1520 dollars and 33 cents."}}

	router := NewRouter(RouterConfig{
		Classifier: NewClassifier(classifierLLM),
		LowRisk:    NewCardAuthenticator(&fakeLLM{}, dir),
		HighRisk:   NewAddressAuthenticator(&fakeLLM{}, dir),
		Assistant:  NewAssistant(assistantLLM, dir),
	})
	table := dialogue.NewRiskTable(map[string]dialogue.RiskLevel{
		"Check Balance": dialogue.RiskLow,
		"Report Fraud":  dialogue.RiskHigh,
	})
	orch := dialogue.NewOrchestrator(router, dialogue.Options{Table: table})
	st := dialogue.NewCallAuthState("CA1")
	ctx := context.Background()

	out, err := orch.Handle(ctx, st, dialogue.Input{Transcript: "I need to check my balance", Caller: "+15550100"})
	require.NoError(t, err)
	assert.Equal(t, replyAskCard, out.Reply)
	assert.Equal(t, dialogue.Unauthenticated, out.State.Current)

	history := []dialogue.Turn{
		{Role: dialogue.RoleCaller, Text: "I need to check my balance"},
		{Role: dialogue.RoleAgent, Text: out.Reply},
	}
	out, err = orch.Handle(ctx, st, dialogue.Input{Transcript: "4821", Caller: "+15550100", History: history})
	require.NoError(t, err)
	assert.Equal(t, "Your checking balance is 1520 dollars and 33 cents.", out.Reply)
	assert.Equal(t, dialogue.AuthLow, out.State.Current)
	assert.Equal(t, []dialogue.Responder{dialogue.LowRiskAuthenticator, dialogue.Assistant}, out.Hops)
}
