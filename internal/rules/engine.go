// Package rules provides a YAML-based rules engine for transaction type
// classification.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/casparse/internal/domain"
)

//go:embed rules.yaml
var embeddedRules []byte

// Rule maps a description pattern to a transaction type.
//
// Rules should be created via YAML loading (NewEngine, LoadEmbedded,
// LoadFromFile), which validates all invariants:
//   - Priority in range [0, 999]
//   - Pattern must be a valid regular expression, non-empty after trimming
//   - Type must be a valid domain.TransactionType
//
// WARNING: Direct struct construction bypasses validation and leaves the
// compiled matcher nil. Fields are exported for YAML unmarshaling only.
type Rule struct {
	Name     string                 `yaml:"name"`
	Pattern  string                 `yaml:"pattern"`
	Priority int                    `yaml:"priority"`
	Type     domain.TransactionType `yaml:"type"`

	re *regexp.Regexp
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine classifies transaction descriptions by first matching rule.
type Engine struct {
	rules []Rule // Sorted by priority (highest first)
}

// MatchResult contains the result of applying a rule
type MatchResult struct {
	Type     domain.TransactionType
	RuleName string // For debugging
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	for i := range ruleSet.Rules {
		rule := &ruleSet.Rules[i]

		if !domain.ValidateTransactionType(rule.Type) {
			return nil, fmt.Errorf("rule %d (%s): invalid type %q", i, rule.Name, rule.Type)
		}
		if rule.Priority < 0 || rule.Priority > 999 {
			return nil, fmt.Errorf("rule %d (%s): priority must be in [0,999], got %d", i, rule.Name, rule.Priority)
		}
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, fmt.Errorf("rule %d (%s): pattern cannot be empty", i, rule.Name)
		}

		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): invalid pattern: %w", i, rule.Name, err)
		}
		rule.re = re
	}

	// Sort rules by priority (highest first). Use SliceStable to preserve
	// YAML file order for rules with equal priority (guarantees
	// deterministic matching).
	sortedRules := make([]Rule, len(ruleSet.Rules))
	copy(sortedRules, ruleSet.Rules)
	sort.SliceStable(sortedRules, func(i, j int) bool {
		return sortedRules[i].Priority > sortedRules[j].Priority
	})

	return &Engine{rules: sortedRules}, nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Match applies rules to a transaction description and returns the first
// match. Rules are evaluated in priority order (highest first); equal
// priorities keep YAML file order. Returns (nil, false) if no rules match.
func (e *Engine) Match(description string) (*MatchResult, bool) {
	desc := strings.TrimSpace(description)
	for _, rule := range e.rules {
		if rule.re.MatchString(desc) {
			return &MatchResult{Type: rule.Type, RuleName: rule.Name}, true
		}
	}
	return nil, false
}

// Classify resolves a transaction description to a type. When no rule
// matches, the sign of the unit movement decides: negative units are a
// redemption, positive a purchase, zero stays unknown.
func (e *Engine) Classify(description string, units decimal.Decimal) domain.TransactionType {
	if res, ok := e.Match(description); ok {
		return res.Type
	}
	switch {
	case units.IsNegative():
		return domain.TypeRedemption
	case units.IsPositive():
		return domain.TypePurchase
	}
	return domain.TypeUnknown
}

// ChargeEntry reports whether the description classifies as a charge
// (STT, stamp duty, load). Charge entries carry an amount but no unit
// movement, so they take a separate parse shape.
func (e *Engine) ChargeEntry(description string) bool {
	res, ok := e.Match(description)
	return ok && domain.ChargeType(res.Type)
}

// Rules returns a copy of the rules for inspection, in match order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
