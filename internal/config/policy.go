package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// ScanPolicy is the declarative part of a deployment: severity overrides for
// detection rules plus allowlist entries seeded at startup.
type ScanPolicy struct {
	// Severities maps detection rule identifiers to severity names,
	// overriding or extending the built-in table.
	Severities map[string]string `yaml:"severities"`

	// Allowlist seeds global suppression entries. Entries created through
	// the API are additive to these.
	Allowlist []AllowlistSpec `yaml:"allowlist"`
}

// AllowlistSpec is one seed allowlist entry.
type AllowlistSpec struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason,omitempty"`
}

// PolicyLoader provides scan policy loading. It abstracts the source so
// deployments can load from files, config maps, or remote services.
type PolicyLoader interface {
	// Load retrieves and parses the policy from the underlying source.
	Load(ctx context.Context) (*ScanPolicy, error)
}

// SeverityMap merges the policy's overrides onto the built-in table. An
// unknown severity name is an error: a typo must not silently downgrade a
// rule to the default.
func (p *ScanPolicy) SeverityMap() (findings.SeverityMap, error) {
	m := findings.DefaultSeverityMap()
	for ruleID, name := range p.Severities {
		sev := findings.ParseSeverity(name)
		if sev == "" {
			return nil, fmt.Errorf("rule %q: unknown severity %q", ruleID, name)
		}
		// Resolve lowercases its lookup; the key must match.
		m[strings.ToLower(ruleID)] = sev
	}
	return m, nil
}

// Validate checks the allowlist specs for structural problems. Pattern
// compilation issues surface later as allowlist config errors.
func (p *ScanPolicy) Validate() error {
	for i, spec := range p.Allowlist {
		if findings.ParseAllowlistKind(spec.Kind) == "" {
			return fmt.Errorf("allowlist entry %d: unknown kind %q", i, spec.Kind)
		}
		if spec.Pattern == "" {
			return fmt.Errorf("allowlist entry %d: empty pattern", i)
		}
	}
	return nil
}
