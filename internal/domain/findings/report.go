package findings

import (
	"time"

	"github.com/google/uuid"
)

// FindingSummary is the redacted, per-item view safe for any reporting
// channel: location and classification only, never matched text.
type FindingSummary struct {
	FindingID   uuid.UUID `json:"finding_id"`
	FilePath    string    `json:"file_path"`
	LineNumber  int       `json:"line_number"`
	SecretType  string    `json:"secret_type"`
	Severity    Severity  `json:"severity"`
	CommitSHA   string    `json:"commit_sha"`
	Reactivated bool      `json:"reactivated,omitempty"`
}

// ScanReport is the diff report for one scan, keyed by scan ID so
// re-running reconciliation overwrites rather than duplicates.
type ScanReport struct {
	ScanID           uuid.UUID        `json:"scan_id"`
	RepositoryID     uuid.UUID        `json:"repository_id"`
	GeneratedAt      time.Time        `json:"generated_at"`
	NewCount         int              `json:"new_count"`
	ResolvedCount    int              `json:"resolved_count"`
	StillActiveCount int              `json:"still_active_count"`
	SuppressedCount  int              `json:"suppressed_count"`
	SkippedCount     int              `json:"skipped_count"`
	BySeverity       map[Severity]int `json:"by_severity"`
	New              []FindingSummary `json:"new"`
	Resolved         []FindingSummary `json:"resolved"`
}
