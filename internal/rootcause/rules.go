package rootcause

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordRule maps message substrings onto a targeted suggestion. Matching
// is case-insensitive; a rule fires when any of its substrings occurs.
type KeywordRule struct {
	ID         string   `yaml:"id"`
	Contains   []string `yaml:"contains"`
	Suggestion string   `yaml:"suggestion"`
}

func (r KeywordRule) matches(lowerMsg string) bool {
	for _, needle := range r.Contains {
		if needle == "" {
			continue
		}
		if strings.Contains(lowerMsg, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

// RulePackFile is the YAML root structure of a keyword rule pack.
type RulePackFile struct {
	Rules []KeywordRule `yaml:"rules"`
}

// LoadRulePack reads a keyword rule pack from path. An empty path or a
// missing file selects the built-in defaults; a malformed file is an error
// since silently dropping rules would change every report.
func LoadRulePack(path string, logger *slog.Logger) ([]KeywordRule, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("rule pack not found, using defaults", slog.String("path", path))
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("read rule pack: %w", err)
	}

	var pack RulePackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}
	if len(pack.Rules) == 0 {
		logger.Warn("rule pack contains no rules, using defaults", slog.String("path", path))
		return DefaultRules(), nil
	}
	return pack.Rules, nil
}

// DefaultRules is the built-in keyword pack, tuned to the failure modes the
// fleet actually produces. Order matters: rules are evaluated and emitted
// top to bottom.
func DefaultRules() []KeywordRule {
	return []KeywordRule{
		{
			ID:         "customer-details",
			Contains:   []string{"failed to retrieve customer details"},
			Suggestion: "Check DB connection or downstream customer API",
		},
		{
			ID:         "connection-refused",
			Contains:   []string{"connection refused"},
			Suggestion: "Verify the downstream service is up and reachable",
		},
		{
			ID:         "oom",
			Contains:   []string{"oom killer", "outofmemory"},
			Suggestion: "Increase container memory limits or hunt the leak",
		},
		{
			ID:         "property-source",
			Contains:   []string{"could not locate propertysource"},
			Suggestion: "Check config server availability and property sources",
		},
		{
			ID:         "timeout",
			Contains:   []string{"timeout"},
			Suggestion: "Increase timeout or inspect slow dependencies",
		},
		{
			ID:         "routing",
			Contains:   []string{"nomapping", "page not found"},
			Suggestion: "Verify controller endpoint or routing config",
		},
		{
			ID:         "email-batch",
			Contains:   []string{"emailbatch"},
			Suggestion: "Check notification queue or mail server",
		},
		{
			ID:         "transactions",
			Contains:   []string{"jta", "transaction"},
			Suggestion: "Review transaction boundaries or DB locks",
		},
		{
			ID:         "connectivity",
			Contains:   []string{"connection"},
			Suggestion: "Investigate DB or network connection stability",
		},
		{
			ID:         "exception",
			Contains:   []string{"exception"},
			Suggestion: "Check stack trace and root exception",
		},
		{
			ID:         "database",
			Contains:   []string{"database", "query"},
			Suggestion: "Review DB performance or slow queries",
		},
	}
}
