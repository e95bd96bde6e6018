package findings

import "errors"

var (
	// ErrInvalidMatch indicates a raw match is missing required fields. The
	// match is rejected individually; the rest of the scan proceeds.
	ErrInvalidMatch = errors.New("invalid raw match")

	// ErrInvalidTransition indicates an illegal finding status transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrFindingNotFound indicates the requested finding does not exist.
	ErrFindingNotFound = errors.New("finding not found")

	// ErrScanNotFound indicates the requested scan does not exist.
	ErrScanNotFound = errors.New("scan not found")

	// ErrAllowlistEntryNotFound indicates the requested allowlist entry does
	// not exist.
	ErrAllowlistEntryNotFound = errors.New("allowlist entry not found")

	// ErrReportNotFound indicates no report exists for the requested scan.
	ErrReportNotFound = errors.New("report not found")

	// ErrStaleScan indicates a reconciliation attempt for a scan older than
	// the repository's last reconciled scan. The pass is rejected in full.
	ErrStaleScan = errors.New("scan superseded by a newer reconciliation")

	// ErrReconciliationConflict indicates another reconciliation pass holds
	// the repository lock. The caller may retry.
	ErrReconciliationConflict = errors.New("concurrent reconciliation in progress")

	// ErrDuplicateScan indicates a scan with the same identifier was already
	// reconciled. Used to make re-submission idempotent.
	ErrDuplicateScan = errors.New("scan already reconciled")
)

// AllowlistConfigError reports a malformed allowlist entry. The entry is
// skipped; it never suppresses anything and never fails the scan.
type AllowlistConfigError struct {
	EntryID string
	Pattern string
	Err     error
}

func (e *AllowlistConfigError) Error() string {
	return "allowlist entry " + e.EntryID + ": bad pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *AllowlistConfigError) Unwrap() error { return e.Err }
