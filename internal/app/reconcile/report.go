package reconcile

import (
	"time"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// buildReport projects a reconciliation result into the stored diff report.
// Only redacted summaries cross this boundary; the report is keyed by scan so
// a re-run overwrites rather than duplicates.
func buildReport(scan *findings.Scan, result *findings.ReconciliationResult, now time.Time) *findings.ScanReport {
	bySeverity := make(map[findings.Severity]int)
	countSeverity := func(fs []*findings.Finding) {
		for _, f := range fs {
			bySeverity[f.Severity()]++
		}
	}
	countSeverity(result.New)
	countSeverity(result.StillActive)

	return &findings.ScanReport{
		ScanID:           scan.ID(),
		RepositoryID:     scan.RepositoryID(),
		GeneratedAt:      now,
		NewCount:         len(result.New),
		ResolvedCount:    len(result.Resolved),
		StillActiveCount: len(result.StillActive),
		SuppressedCount:  result.Suppressed,
		SkippedCount:     result.Skipped,
		BySeverity:       bySeverity,
		New:              summarize(result.New, true),
		Resolved:         summarize(result.Resolved, false),
	}
}

// summarize produces redacted per-finding summaries. markReactivated flags
// entries whose first-seen scan predates this report's scan, which is how a
// reappearance is distinguished from a first sighting.
func summarize(fs []*findings.Finding, markReactivated bool) []findings.FindingSummary {
	out := make([]findings.FindingSummary, 0, len(fs))
	for _, f := range fs {
		s := findings.FindingSummary{
			FindingID:  f.ID(),
			FilePath:   f.FilePath(),
			LineNumber: f.LineNumber(),
			SecretType: f.SecretType(),
			Severity:   f.Severity(),
			CommitSHA:  f.CommitSHA(),
		}
		if markReactivated && f.FirstSeenScanID() != f.LastSeenScanID() {
			s.Reactivated = true
		}
		out = append(out, s)
	}
	return out
}
