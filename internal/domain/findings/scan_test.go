package findings

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_Lifecycle(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewScan(uuid.New(), uuid.New(), "deadbeef", "main", ScanTypePush, "ci", now)
	require.Equal(t, ScanStatusPending, s.Status())

	require.NoError(t, s.Start(now))
	assert.Equal(t, ScanStatusRunning, s.Status())
	started, ok := s.StartedAt()
	require.True(t, ok)
	assert.Equal(t, now, started)

	totals := ScanTotals{TotalFindings: 3, BySeverity: map[Severity]int{SeverityHigh: 3}}
	require.NoError(t, s.Complete(totals, now.Add(time.Minute)))
	assert.Equal(t, ScanStatusCompleted, s.Status())
	assert.Equal(t, 3, s.Totals().TotalFindings)

	// Terminal.
	assert.Error(t, s.Start(now))
	assert.Error(t, s.Fail("late failure", now))
}

func TestScan_FailFromRunning(t *testing.T) {
	t.Parallel()

	s := NewScan(uuid.New(), uuid.New(), "deadbeef", "main", ScanTypeManual, "alice", time.Now())
	require.NoError(t, s.Start(time.Now()))
	require.NoError(t, s.Fail("scanner crashed", time.Now()))

	assert.Equal(t, ScanStatusFailed, s.Status())
	assert.Equal(t, "scanner crashed", s.ErrorMessage())
}

func TestScanStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current ScanStatus
		target  ScanStatus
		wantErr bool
	}{
		{name: "pending to running", current: ScanStatusPending, target: ScanStatusRunning, wantErr: false},
		{name: "pending to failed", current: ScanStatusPending, target: ScanStatusFailed, wantErr: false},
		{name: "pending to completed invalid", current: ScanStatusPending, target: ScanStatusCompleted, wantErr: true},
		{name: "running to completed", current: ScanStatusRunning, target: ScanStatusCompleted, wantErr: false},
		{name: "completed terminal", current: ScanStatusCompleted, target: ScanStatusRunning, wantErr: true},
		{name: "failed terminal", current: ScanStatusFailed, target: ScanStatusRunning, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.current.ValidateTransition(tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
