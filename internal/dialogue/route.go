package dialogue

import "fmt"

// Responder identifies the policy unit that acts on an utterance.
type Responder int

const (
	Classifier Responder = iota
	LowRiskAuthenticator
	HighRiskAuthenticator
	Assistant
)

var responderNames = [...]string{
	Classifier:            "classifier",
	LowRiskAuthenticator:  "low_risk_authenticator",
	HighRiskAuthenticator: "high_risk_authenticator",
	Assistant:             "assistant",
}

func (r Responder) String() string {
	if r < 0 || int(r) >= len(responderNames) {
		return fmt.Sprintf("Responder(%d)", int(r))
	}
	return responderNames[r]
}

func (r Responder) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Select picks the responder for the current state.
func Select(s Snapshot) Responder {
	switch {
	case !s.Classified:
		return Classifier
	case s.Current.Satisfies(s.Required):
		return Assistant
	case s.Required == RiskHigh:
		return HighRiskAuthenticator
	default:
		return LowRiskAuthenticator
	}
}

// grants is the auth level a successful verification by r yields.
func (r Responder) grants() AuthLevel {
	switch r {
	case LowRiskAuthenticator:
		return AuthLow
	case HighRiskAuthenticator:
		return AuthHigh
	}
	return Unauthenticated
}
