package findings

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FindingFilter narrows finding queries for the API surface.
type FindingFilter struct {
	RepositoryID *uuid.UUID
	Status       Status
	Severity     Severity
	SecretType   string
	PathSearch   string
	SortBy       string
	SortDesc     bool
	Page         int
	PageSize     int
}

// FindingPage is one page of findings plus the total row count.
type FindingPage struct {
	Items []*Finding
	Total int
}

// FindingRepository provides persistence for findings. CommitReconciliation
// is the only write path reconciliation uses: the whole read-diff-write
// cycle of a pass runs under the repository's reconciliation lock so
// concurrent passes serialize instead of overwriting each other.
type FindingRepository interface {
	// GetTracked returns all of the repository's findings. Ignored and
	// false-positive findings are included so their identity keys are
	// visible.
	GetTracked(ctx context.Context, repositoryID uuid.UUID) ([]*Finding, error)

	// CommitReconciliation runs one reconciliation pass while holding the
	// repository's lock: it loads the tracked findings, hands them to
	// build, and atomically applies the returned commit, recording the
	// scan as the repository's latest reconciled one. Losing the lock race
	// fails with ErrReconciliationConflict and build never runs; a scan
	// older than the last reconciled one fails with ErrStaleScan the same
	// way.
	CommitReconciliation(ctx context.Context, scan *Scan, build ReconcileFunc) error

	// GetByID loads one finding.
	GetByID(ctx context.Context, id uuid.UUID) (*Finding, error)

	// Update persists status and resolution changes made outside
	// reconciliation, such as marking a false positive.
	Update(ctx context.Context, f *Finding) error

	// List returns a filtered, sorted, paginated page of findings.
	List(ctx context.Context, filter FindingFilter) (FindingPage, error)

	// ListRelated returns findings likely tied to the same exposure as f:
	// same repository and secret type, in the same file or under the same
	// directory, created at or after since. f itself is excluded.
	ListRelated(ctx context.Context, f *Finding, since time.Time) ([]*Finding, error)

	// Stats aggregates finding counts, optionally for one repository.
	Stats(ctx context.Context, q StatsQuery) (FindingStats, error)
}

// AllowlistRepository provides persistence for allowlist entries.
type AllowlistRepository interface {
	// GetEffective returns the active entries applying to the repository:
	// its own entries plus global ones.
	GetEffective(ctx context.Context, repositoryID uuid.UUID) ([]*AllowlistEntry, error)

	// Create persists a new entry.
	Create(ctx context.Context, e *AllowlistEntry) error

	// RecordMatches credits entries for suppressions observed during a scan.
	// Counter updates are advisory; this call is best-effort.
	RecordMatches(ctx context.Context, entryIDs []uuid.UUID, at time.Time) error

	// Deactivate turns an entry off without deleting it.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// ScanRepository provides persistence for scans.
type ScanRepository interface {
	Create(ctx context.Context, s *Scan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Scan, error)
	Update(ctx context.Context, s *Scan) error

	// LastReconciled returns the most recently reconciled scan for a
	// repository, or ErrScanNotFound when none exists.
	LastReconciled(ctx context.Context, repositoryID uuid.UUID) (*Scan, error)
}

// ReportRepository stores diff reports keyed by scan so re-posting is
// idempotent.
type ReportRepository interface {
	// Upsert overwrites any existing report for the same scan.
	Upsert(ctx context.Context, r *ScanReport) error
	GetByScanID(ctx context.Context, scanID uuid.UUID) (*ScanReport, error)
}
