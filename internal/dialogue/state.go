package dialogue

import (
	"strings"
	"sync"
)

// CallAuthState tracks what the caller wants and how far they have been
// verified. Only the Orchestrator writes it; other readers take a Snapshot.
type CallAuthState struct {
	callID string

	// turn serializes whole routing passes for the call.
	turn sync.Mutex

	mu             sync.RWMutex
	classification string
	classified     bool
	required       RiskLevel
	current        AuthLevel
}

func NewCallAuthState(callID string) *CallAuthState {
	return &CallAuthState{callID: callID}
}

func (s *CallAuthState) CallID() string { return s.callID }

// Snapshot is an immutable copy of a CallAuthState.
type Snapshot struct {
	CallID         string    `json:"call_id"`
	Classification string    `json:"intent_classification,omitempty"`
	Classified     bool      `json:"classified"`
	Required       RiskLevel `json:"required_auth_level"`
	Current        AuthLevel `json:"current_auth_level"`
}

func (s *CallAuthState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CallID:         s.callID,
		Classification: s.classification,
		Classified:     s.classified,
		Required:       s.required,
		Current:        s.current,
	}
}

// classify records the caller's intent once. Empty and "None" tags carry no
// classification. It reports whether the state changed.
func (s *CallAuthState) classify(tag string, table *RiskTable) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, "none") {
		return false
	}
	if name, ok := table.Canonical(tag); ok {
		tag = name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classified {
		return false
	}
	s.classification = tag
	s.classified = true
	s.required = table.Resolve(tag)
	return true
}

// raise applies a successful verification. Low only lifts an unauthenticated
// caller; High lifts anything below High. The level never decreases.
func (s *CallAuthState) raise(level AuthLevel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch level {
	case AuthLow:
		if s.current != Unauthenticated {
			return false
		}
	case AuthHigh:
		if s.current == AuthHigh {
			return false
		}
	default:
		return false
	}
	s.current = level
	return true
}
