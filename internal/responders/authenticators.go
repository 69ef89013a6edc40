package responders

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/providers/llm"
	"github.com/yoockh/callgate/internal/services"
)

// Directory looks up the caller's account and checks candidate credentials
// against what is on file.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (*models.Customer, error)
	VerifyCardLast4(c *models.Customer, candidate string) bool
	VerifyAddress(c *models.Customer, candidate services.Address) bool
}

const (
	replyNoAccount    = "I'm sorry, I couldn't find an account linked to the number you're calling from, so I'm unable to verify your identity on this call."
	replyAskCard      = "Before I can help with that, I need to verify your identity. Could you please tell me the last four digits of your card number?"
	replyCardMismatch = "Sorry, those digits don't match what we have on file. Could you please try the last four digits of your card again?"
	replyAskAddress   = "For this request I need to verify your identity further. Could you please tell me your full home address, including street, city, state and zip code?"
	replyAddrMismatch = "Sorry, that address doesn't match what we have on file. Could you please repeat your full home address?"
	replyAddrPartial  = "Thanks. I still need your %s to finish verifying your address."
)

var (
	digitRun   = regexp.MustCompile(`\d(?:[\s.-]*\d){3,}`)
	cardWords  = regexp.MustCompile(`(?i)\b(card|digits|last (four|4)|ending in|ends in)\b`)
	nonDigit   = regexp.MustCompile(`\D`)
	digitWords = map[string]string{
		"zero": "0", "oh": "0", "one": "1", "two": "2", "three": "3", "four": "4",
		"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	}
)

// spokenLast4 pulls the last four digits out of a digit run in the
// transcript. Spelled-out digits are accepted.
func spokenLast4(transcript string) string {
	words := strings.Fields(strings.ToLower(transcript))
	for i, w := range words {
		w = strings.Trim(w, ".,!?")
		if d, ok := digitWords[w]; ok {
			w = d
		}
		words[i] = w
	}
	runs := digitRun.FindAllString(strings.Join(words, " "), -1)
	if len(runs) == 0 {
		return ""
	}
	digits := nonDigit.ReplaceAllString(runs[len(runs)-1], "")
	return digits[len(digits)-4:]
}

// CardAuthenticator verifies a caller at Low by the last four digits of the
// card on file.
type CardAuthenticator struct {
	llm       llm.Provider
	directory Directory
}

func NewCardAuthenticator(p llm.Provider, d Directory) *CardAuthenticator {
	return &CardAuthenticator{llm: p, directory: d}
}

const cardExtractSystem = `Extract the last four digits of a payment card that the caller states in the transcript.
Reply only with JSON of the form {"last4": "1234"}. Use an empty string if the caller did not state four card digits.`

type cardCandidate struct {
	Last4 string `json:"last4"`
}

func (a *CardAuthenticator) Respond(ctx context.Context, req dialogue.Request) (dialogue.Result, error) {
	customer, err := lookupCustomer(ctx, a.directory, req.Caller)
	if err != nil {
		return dialogue.Result{}, err
	}
	if customer == nil {
		return dialogue.Result{Reply: replyNoAccount}, nil
	}

	// Numbers in an ordinary request (a year, an amount) are not a card
	// attempt unless the caller was asked for the digits or names the card.
	if !cardPrompted(req.History) && !cardWords.MatchString(req.Transcript) {
		return dialogue.Result{Reply: replyAskCard}, nil
	}

	candidate := spokenLast4(req.Transcript)
	if candidate == "" && strings.ContainsAny(req.Transcript, "0123456789") {
		var out cardCandidate
		if err := a.extract(ctx, req.Transcript, &out); err != nil {
			return dialogue.Result{}, fmt.Errorf("card authenticator: %w", err)
		}
		candidate = nonDigit.ReplaceAllString(out.Last4, "")
	}
	if len(candidate) != 4 {
		return dialogue.Result{Reply: replyAskCard}, nil
	}

	if !a.directory.VerifyCardLast4(customer, candidate) {
		return dialogue.Result{Reply: replyCardMismatch}, nil
	}
	return dialogue.Result{Effects: dialogue.Effects{Verified: true}}, nil
}

// cardPrompted reports whether the last thing the agent said asked for the
// card digits.
func cardPrompted(history []dialogue.Turn) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != dialogue.RoleAgent {
			continue
		}
		return history[i].Text == replyAskCard || history[i].Text == replyCardMismatch
	}
	return false
}

func (a *CardAuthenticator) extract(ctx context.Context, transcript string, out *cardCandidate) error {
	raw, err := a.llm.Generate(ctx, llm.Request{
		System:     cardExtractSystem,
		Messages:   []llm.Message{{Role: llm.RoleUser, Text: transcript}},
		SchemaName: "card_last4",
		Schema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"last4": map[string]any{"type": "string"}},
			"required":             []string{"last4"},
			"additionalProperties": false,
		},
	})
	if err != nil {
		return err
	}
	return llm.DecodeJSON(raw, out)
}

// AddressAuthenticator verifies a caller at High by the home address on file.
type AddressAuthenticator struct {
	llm       llm.Provider
	directory Directory
}

func NewAddressAuthenticator(p llm.Provider, d Directory) *AddressAuthenticator {
	return &AddressAuthenticator{llm: p, directory: d}
}

const addressExtractSystem = `Extract the caller's home address from the conversation. The caller may give parts of it across several turns; combine them, preferring the most recent statement.
Reply only with JSON of the form {"street": "", "city": "", "state": "", "zip": ""}. Leave a field empty when the caller has not stated it.`

// addressTurns bounds how much caller history feeds address extraction.
const addressTurns = 4

func (a *AddressAuthenticator) Respond(ctx context.Context, req dialogue.Request) (dialogue.Result, error) {
	customer, err := lookupCustomer(ctx, a.directory, req.Caller)
	if err != nil {
		return dialogue.Result{}, err
	}
	if customer == nil {
		return dialogue.Result{Reply: replyNoAccount}, nil
	}

	var said []string
	for _, t := range req.History {
		if t.Role == dialogue.RoleCaller {
			said = append(said, t.Text)
		}
	}
	if len(said) > addressTurns {
		said = said[len(said)-addressTurns:]
	}
	said = append(said, req.Transcript)

	raw, err := a.llm.Generate(ctx, llm.Request{
		System:     addressExtractSystem,
		Messages:   []llm.Message{{Role: llm.RoleUser, Text: strings.Join(said, "\n")}},
		SchemaName: "home_address",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"street": map[string]any{"type": "string"},
				"city":   map[string]any{"type": "string"},
				"state":  map[string]any{"type": "string"},
				"zip":    map[string]any{"type": "string"},
			},
			"required":             []string{"street", "city", "state", "zip"},
			"additionalProperties": false,
		},
	})
	if err != nil {
		return dialogue.Result{}, fmt.Errorf("address authenticator: %w", err)
	}
	var addr services.Address
	if err := llm.DecodeJSON(raw, &addr); err != nil {
		return dialogue.Result{}, fmt.Errorf("address authenticator: %w", err)
	}

	missing := missingAddressParts(addr)
	switch {
	case len(missing) == 4:
		return dialogue.Result{Reply: replyAskAddress}, nil
	case len(missing) > 0:
		return dialogue.Result{Reply: fmt.Sprintf(replyAddrPartial, joinParts(missing))}, nil
	}

	if !a.directory.VerifyAddress(customer, addr) {
		return dialogue.Result{Reply: replyAddrMismatch}, nil
	}
	return dialogue.Result{Effects: dialogue.Effects{Verified: true}}, nil
}

func missingAddressParts(a services.Address) []string {
	var out []string
	for _, p := range []struct{ name, val string }{
		{"street address", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zip code", a.Zip},
	} {
		if strings.TrimSpace(p.val) == "" {
			out = append(out, p.name)
		}
	}
	return out
}

func joinParts(parts []string) string {
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
