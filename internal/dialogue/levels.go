package dialogue

import (
	"fmt"
	"strings"
)

// RiskLevel is the verification tier an intent category requires.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskNone:
		return "None"
	case RiskLow:
		return "Low"
	case RiskHigh:
		return "High"
	}
	return fmt.Sprintf("RiskLevel(%d)", int(r))
}

func (r RiskLevel) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RiskLevel) UnmarshalText(b []byte) error {
	lvl, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*r = lvl
	return nil
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return RiskNone, nil
	case "low":
		return RiskLow, nil
	case "high":
		return RiskHigh, nil
	}
	return RiskHigh, fmt.Errorf("unknown risk level %q", s)
}

// AuthLevel is how far the caller has been verified on this call.
type AuthLevel int

const (
	Unauthenticated AuthLevel = iota
	AuthLow
	AuthHigh
)

func (a AuthLevel) String() string {
	switch a {
	case Unauthenticated:
		return "Unauthenticated"
	case AuthLow:
		return "Low"
	case AuthHigh:
		return "High"
	}
	return fmt.Sprintf("AuthLevel(%d)", int(a))
}

func (a AuthLevel) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AuthLevel) UnmarshalText(b []byte) error {
	lvl, err := ParseAuthLevel(string(b))
	if err != nil {
		return err
	}
	*a = lvl
	return nil
}

func ParseAuthLevel(s string) (AuthLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unauthenticated":
		return Unauthenticated, nil
	case "low":
		return AuthLow, nil
	case "high":
		return AuthHigh, nil
	}
	return Unauthenticated, fmt.Errorf("unknown auth level %q", s)
}

// Satisfies reports whether a caller verified at a may be served for a request
// requiring r. High satisfies Low; Low never satisfies High.
func (a AuthLevel) Satisfies(r RiskLevel) bool {
	switch r {
	case RiskNone:
		return true
	case RiskLow:
		return a == AuthLow || a == AuthHigh
	default:
		return a == AuthHigh
	}
}
