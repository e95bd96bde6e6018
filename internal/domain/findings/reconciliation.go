package findings

// ReconciliationResult is the transient output of one reconciliation pass.
// Reactivated findings appear in New: a finding that becomes visible again
// is news to the consumer regardless of its history.
type ReconciliationResult struct {
	New         []*Finding
	StillActive []*Finding
	Resolved    []*Finding

	// Suppressed counts candidates that matched an allowlist entry and were
	// therefore never considered for persistence.
	Suppressed int

	// Skipped counts raw matches dropped for being malformed. The scan still
	// completes; the count feeds the best-effort report.
	Skipped int
}

// ReconciliationCommit is the atomic unit applied by the persistence layer:
// every creation and update from one pass plus the completed scan, written
// all-or-nothing under the repository's reconciliation lock.
type ReconciliationCommit struct {
	Scan    *Scan
	Creates []*Finding
	Updates []*Finding
}

// ReconcileFunc turns the repository's tracked findings into one pass's
// commit. The persistence layer invokes it while holding the repository's
// reconciliation lock, so the tracked set it receives cannot change before
// the commit lands.
type ReconcileFunc func(tracked []*Finding) (ReconciliationCommit, error)
