package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

func TestScanPolicy_SeverityMap(t *testing.T) {
	t.Parallel()

	policy := &ScanPolicy{
		Severities: map[string]string{
			"jwt":             "high",
			"internal-rule-x": "info",
			"Slack-Bot-Token": "low",
		},
	}

	m, err := policy.SeverityMap()
	require.NoError(t, err)

	// Override applied, addition applied, built-ins untouched.
	assert.Equal(t, findings.SeverityHigh, m.Resolve("jwt"))
	assert.Equal(t, findings.SeverityInfo, m.Resolve("internal-rule-x"))
	assert.Equal(t, findings.SeverityCritical, m.Resolve("aws-access-token"))

	// Rule IDs match case-insensitively regardless of how the policy spells
	// them.
	assert.Equal(t, findings.SeverityLow, m.Resolve("slack-bot-token"))
	assert.Equal(t, findings.SeverityLow, m.Resolve("Slack-Bot-Token"))
}

func TestScanPolicy_SeverityMapRejectsUnknownName(t *testing.T) {
	t.Parallel()

	policy := &ScanPolicy{Severities: map[string]string{"jwt": "urgent"}}
	_, err := policy.SeverityMap()
	assert.Error(t, err)
}

func TestScanPolicy_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  ScanPolicy
		wantErr bool
	}{
		{
			name: "valid entries",
			policy: ScanPolicy{Allowlist: []AllowlistSpec{
				{Kind: "path", Pattern: "test/fixtures"},
				{Kind: "stopword", Pattern: "example"},
			}},
			wantErr: false,
		},
		{
			name:    "unknown kind",
			policy:  ScanPolicy{Allowlist: []AllowlistSpec{{Kind: "glob", Pattern: "*"}}},
			wantErr: true,
		},
		{
			name:    "empty pattern",
			policy:  ScanPolicy{Allowlist: []AllowlistSpec{{Kind: "path", Pattern: ""}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
