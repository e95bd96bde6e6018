package findings

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanStatus represents the execution state of one scan submission.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

func (s ScanStatus) String() string { return string(s) }

// ParseScanStatus converts a string to a ScanStatus.
func ParseScanStatus(s string) ScanStatus {
	switch s {
	case "pending":
		return ScanStatusPending
	case "running":
		return ScanStatusRunning
	case "completed":
		return ScanStatusCompleted
	case "failed":
		return ScanStatusFailed
	default:
		return ""
	}
}

// ValidateTransition checks if a scan status transition is valid.
func (s ScanStatus) ValidateTransition(target ScanStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid scan status transition from %s to %s", s, target)
	}
	return nil
}

func (s ScanStatus) isValidTransition(target ScanStatus) bool {
	switch s {
	case ScanStatusPending:
		return target == ScanStatusRunning || target == ScanStatusFailed
	case ScanStatusRunning:
		return target == ScanStatusCompleted || target == ScanStatusFailed
	case ScanStatusCompleted, ScanStatusFailed:
		// Terminal states.
		return false
	default:
		return false
	}
}

// ScanType records what triggered a scan.
type ScanType string

const (
	ScanTypePush        ScanType = "push"
	ScanTypePullRequest ScanType = "pull_request"
	ScanTypeManual      ScanType = "manual"
)

func (t ScanType) String() string { return string(t) }

// ScanTotals aggregates the outcome counters for one scan. NewFindings and
// Resolved mirror the reconciliation diff so the scan row alone can answer
// "what changed".
type ScanTotals struct {
	FilesScanned  int
	TotalFindings int
	NewFindings   int
	Resolved      int
	BySeverity    map[Severity]int
	Suppressed    int
	Skipped       int
}

// Scan is one submission of scanner output for a repository. Its creation
// time provides the ordering used to detect stale reconciliation attempts.
type Scan struct {
	id           uuid.UUID
	repositoryID uuid.UUID
	commitSHA    string
	branch       string
	scanType     ScanType
	status       ScanStatus
	totals       ScanTotals
	errorMessage string
	triggeredBy  string
	createdAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time
}

// NewScan creates a pending scan for the given repository and commit.
func NewScan(id, repositoryID uuid.UUID, commitSHA, branch string, scanType ScanType, triggeredBy string, now time.Time) *Scan {
	return &Scan{
		id:           id,
		repositoryID: repositoryID,
		commitSHA:    commitSHA,
		branch:       branch,
		scanType:     scanType,
		status:       ScanStatusPending,
		triggeredBy:  triggeredBy,
		createdAt:    now,
	}
}

// ReconstructScan creates a Scan from stored fields. This should only be
// used by repositories when loading from the DB.
func ReconstructScan(
	id, repositoryID uuid.UUID,
	commitSHA, branch string,
	scanType ScanType,
	status ScanStatus,
	totals ScanTotals,
	errorMessage, triggeredBy string,
	createdAt time.Time,
	startedAt, completedAt *time.Time,
) *Scan {
	return &Scan{
		id:           id,
		repositoryID: repositoryID,
		commitSHA:    commitSHA,
		branch:       branch,
		scanType:     scanType,
		status:       status,
		totals:       totals,
		errorMessage: errorMessage,
		triggeredBy:  triggeredBy,
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
	}
}

func (s *Scan) ID() uuid.UUID           { return s.id }
func (s *Scan) RepositoryID() uuid.UUID { return s.repositoryID }
func (s *Scan) CommitSHA() string       { return s.commitSHA }
func (s *Scan) Branch() string          { return s.branch }
func (s *Scan) Type() ScanType          { return s.scanType }
func (s *Scan) Status() ScanStatus      { return s.status }
func (s *Scan) Totals() ScanTotals      { return s.totals }
func (s *Scan) ErrorMessage() string    { return s.errorMessage }
func (s *Scan) TriggeredBy() string     { return s.triggeredBy }
func (s *Scan) CreatedAt() time.Time    { return s.createdAt }

// StartedAt returns when processing began.
func (s *Scan) StartedAt() (time.Time, bool) {
	if s.startedAt == nil {
		return time.Time{}, false
	}
	return *s.startedAt, true
}

// CompletedAt returns when processing reached a terminal state.
func (s *Scan) CompletedAt() (time.Time, bool) {
	if s.completedAt == nil {
		return time.Time{}, false
	}
	return *s.completedAt, true
}

// Start transitions the scan to running.
func (s *Scan) Start(now time.Time) error {
	if err := s.status.ValidateTransition(ScanStatusRunning); err != nil {
		return err
	}
	s.status = ScanStatusRunning
	s.startedAt = &now
	return nil
}

// Complete transitions the scan to completed and records its totals.
func (s *Scan) Complete(totals ScanTotals, now time.Time) error {
	if err := s.status.ValidateTransition(ScanStatusCompleted); err != nil {
		return err
	}
	s.status = ScanStatusCompleted
	s.totals = totals
	s.completedAt = &now
	return nil
}

// Fail transitions the scan to failed with a diagnostic message. The message
// must never contain secret material.
func (s *Scan) Fail(msg string, now time.Time) error {
	if err := s.status.ValidateTransition(ScanStatusFailed); err != nil {
		return err
	}
	s.status = ScanStatusFailed
	s.errorMessage = msg
	s.completedAt = &now
	return nil
}
