package dialogue

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RiskTable maps intent categories to the risk level they require. Lookups
// ignore case and surrounding or repeated whitespace.
type RiskTable struct {
	levels map[string]RiskLevel
	names  map[string]string
}

func NewRiskTable(categories map[string]RiskLevel) *RiskTable {
	t := &RiskTable{
		levels: make(map[string]RiskLevel, len(categories)),
		names:  make(map[string]string, len(categories)),
	}
	for name, level := range categories {
		key := normalizeCategory(name)
		if key == "" {
			continue
		}
		t.levels[key] = level
		t.names[key] = strings.TrimSpace(name)
	}
	return t
}

func DefaultRiskTable() *RiskTable {
	return NewRiskTable(map[string]RiskLevel{
		"General Product/Benefits Inquiry": RiskNone,
		"Transaction Inquiry":              RiskLow,
		"Fraud/Claims":                     RiskHigh,
		"Account Opening":                  RiskHigh,
		"Payment Processing":               RiskLow,
		"Account Balance Inquiry":          RiskLow,
		"Lost or Stolen Card Reporting":    RiskHigh,
		"Online Banking Technical Support": RiskLow,
		"Loan/Mortgage Inquiry":            RiskHigh,
		"Wire Transfer Assistance":         RiskHigh,
		"Credit Card Payment Assistance":   RiskLow,
		"Dispute/Chargeback Request":       RiskHigh,
		"Account Information Update":       RiskHigh,
		"Rewards Points Inquiry":           RiskLow,
		"Overdraft/NSF Assistance":         RiskLow,
		"Investment Account Inquiry":       RiskHigh,
		"Mobile App Technical Issue":       RiskLow,
		"Fee or Charge Explanation":        RiskLow,
		"Check Deposit Issues":             RiskLow,
		"Foreign Transaction Inquiry":      RiskHigh,
	})
}

type riskTableFile struct {
	Categories map[string]string `yaml:"categories"`
}

// LoadRiskTable reads a YAML document of the form
//
//	categories:
//	  Account Balance Inquiry: Low
//	  Wire Transfer Assistance: High
func LoadRiskTable(path string) (*RiskTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk table: %w", err)
	}
	var f riskTableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse risk table: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("risk table %s has no categories", path)
	}
	levels := make(map[string]RiskLevel, len(f.Categories))
	for name, level := range f.Categories {
		l, err := ParseRiskLevel(level)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		levels[name] = l
	}
	return NewRiskTable(levels), nil
}

// Resolve returns the required level for a classification. Unknown
// classifications require High.
func (t *RiskTable) Resolve(classification string) RiskLevel {
	if l, ok := t.Lookup(classification); ok {
		return l
	}
	return RiskHigh
}

func (t *RiskTable) Lookup(classification string) (RiskLevel, bool) {
	l, ok := t.levels[normalizeCategory(classification)]
	return l, ok
}

// Canonical returns the configured spelling of a category.
func (t *RiskTable) Canonical(classification string) (string, bool) {
	name, ok := t.names[normalizeCategory(classification)]
	return name, ok
}

// Categories lists the configured category names in sorted order.
func (t *RiskTable) Categories() []string {
	out := make([]string, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
