package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_ParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected Status
	}{
		{name: "active", input: "active", expected: StatusActive},
		{name: "resolved", input: "resolved", expected: StatusResolved},
		{name: "false positive", input: "false_positive", expected: StatusFalsePositive},
		{name: "ignored", input: "ignored", expected: StatusIgnored},
		{name: "unknown", input: "open", expected: Status("")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ParseStatus(tt.input))
		})
	}
}

func TestStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		currentStatus Status
		targetStatus  Status
		wantErr       bool
	}{
		// Valid transitions from active.
		{
			name:          "active to resolved",
			currentStatus: StatusActive,
			targetStatus:  StatusResolved,
			wantErr:       false,
		},
		{
			name:          "active to false positive",
			currentStatus: StatusActive,
			targetStatus:  StatusFalsePositive,
			wantErr:       false,
		},
		{
			name:          "active to ignored",
			currentStatus: StatusActive,
			targetStatus:  StatusIgnored,
			wantErr:       false,
		},
		{
			name:          "active to active invalid",
			currentStatus: StatusActive,
			targetStatus:  StatusActive,
			wantErr:       true,
		},

		// Valid transitions from resolved.
		{
			name:          "resolved to active reactivation",
			currentStatus: StatusResolved,
			targetStatus:  StatusActive,
			wantErr:       false,
		},
		{
			name:          "resolved to false positive",
			currentStatus: StatusResolved,
			targetStatus:  StatusFalsePositive,
			wantErr:       false,
		},

		// Ignored findings can be explicitly re-tracked.
		{
			name:          "ignored to active",
			currentStatus: StatusIgnored,
			targetStatus:  StatusActive,
			wantErr:       false,
		},
		{
			name:          "ignored to resolved invalid",
			currentStatus: StatusIgnored,
			targetStatus:  StatusResolved,
			wantErr:       true,
		},

		// False positive is terminal for plain transitions.
		{
			name:          "false positive to active invalid",
			currentStatus: StatusFalsePositive,
			targetStatus:  StatusActive,
			wantErr:       true,
		},
		{
			name:          "false positive to resolved invalid",
			currentStatus: StatusFalsePositive,
			targetStatus:  StatusResolved,
			wantErr:       true,
		},

		{
			name:          "unknown status invalid",
			currentStatus: Status("open"),
			targetStatus:  StatusActive,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.currentStatus.ValidateTransition(tt.targetStatus)
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			assert.NoError(t, err)
		})
	}
}
