package findings

import "strings"

// Severity represents the assessed impact of a finding. It is derived from
// the detection rule that produced the match, never from the secret value.
type Severity string

const (
	// SeverityCritical indicates a secret that grants broad production access.
	SeverityCritical Severity = "critical"

	// SeverityHigh indicates a secret with direct access to a specific service.
	SeverityHigh Severity = "high"

	// SeverityMedium indicates a secret whose blast radius is unclear.
	SeverityMedium Severity = "medium"

	// SeverityLow indicates a secret with limited or internal-only impact.
	SeverityLow Severity = "low"

	// SeverityInfo indicates a match kept for awareness only.
	SeverityInfo Severity = "info"
)

func (s Severity) String() string { return string(s) }

// ParseSeverity converts a string to a Severity. Unknown values map to
// the empty severity.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info":
		return SeverityInfo
	default:
		return ""
	}
}

// SeverityMap resolves detection rule identifiers to severities. It is an
// explicit, injectable table so new rule types fail closed to a safe default
// rather than erroring.
type SeverityMap map[string]Severity

// Resolve returns the severity for a rule identifier. Unknown rules default
// to medium.
func (m SeverityMap) Resolve(ruleID string) Severity {
	if sev, ok := m[strings.ToLower(ruleID)]; ok {
		return sev
	}
	return SeverityMedium
}

// DefaultSeverityMap returns the built-in rule-to-severity table. Deployments
// override or extend it through configuration.
func DefaultSeverityMap() SeverityMap {
	return SeverityMap{
		"aws-access-token":        SeverityCritical,
		"aws-secret-key":          SeverityCritical,
		"gcp-service-account":     SeverityCritical,
		"azure-storage-key":       SeverityCritical,
		"private-key":             SeverityCritical,
		"github-pat":              SeverityHigh,
		"github-oauth":            SeverityHigh,
		"github-app-token":        SeverityHigh,
		"gitlab-pat":              SeverityHigh,
		"slack-bot-token":         SeverityHigh,
		"stripe-access-token":     SeverityHigh,
		"twilio-api-key":          SeverityHigh,
		"sendgrid-api-token":      SeverityHigh,
		"jwt":                     SeverityMedium,
		"generic-api-key":         SeverityMedium,
		"slack-webhook-url":       SeverityLow,
		"mailchimp-api-key":       SeverityLow,
		"easypost-test-api-token": SeverityInfo,
	}
}
