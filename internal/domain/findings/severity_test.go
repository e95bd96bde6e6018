package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityMap_Resolve(t *testing.T) {
	t.Parallel()

	severities := DefaultSeverityMap()

	tests := []struct {
		name     string
		ruleID   string
		expected Severity
	}{
		{name: "aws token is critical", ruleID: "aws-access-token", expected: SeverityCritical},
		{name: "github pat is high", ruleID: "github-pat", expected: SeverityHigh},
		{name: "case insensitive lookup", ruleID: "AWS-Access-Token", expected: SeverityCritical},
		{name: "unknown rule fails closed to medium", ruleID: "brand-new-rule", expected: SeverityMedium},
		{name: "empty rule fails closed to medium", ruleID: "", expected: SeverityMedium},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, severities.Resolve(tt.ruleID))
		})
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SeverityCritical, ParseSeverity("critical"))
	assert.Equal(t, SeverityHigh, ParseSeverity("HIGH"))
	assert.Equal(t, Severity(""), ParseSeverity("urgent"))
}
