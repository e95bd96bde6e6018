// Package report renders stored scan reports into human-facing formats.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// severityOrder fixes the display order from most to least urgent.
var severityOrder = []findings.Severity{
	findings.SeverityCritical,
	findings.SeverityHigh,
	findings.SeverityMedium,
	findings.SeverityLow,
	findings.SeverityInfo,
}

// RenderMarkdown renders a diff report as the markdown comment posted on
// pull requests. The output contains locations and classifications only;
// matched secret text never appears in a report.
func RenderMarkdown(r *findings.ScanReport) string {
	var b strings.Builder

	switch {
	case r.NewCount == 0 && r.ResolvedCount == 0:
		b.WriteString("## Secret Scan: no changes\n\n")
	case r.NewCount == 0:
		b.WriteString("## Secret Scan: all clear\n\n")
	default:
		b.WriteString(fmt.Sprintf("## Secret Scan: %d new finding%s\n\n", r.NewCount, plural(r.NewCount)))
	}

	fmt.Fprintf(&b, "| New | Resolved | Still active | Suppressed |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n", r.NewCount, r.ResolvedCount, r.StillActiveCount, r.SuppressedCount)

	if len(r.BySeverity) > 0 {
		parts := make([]string, 0, len(severityOrder))
		for _, sev := range severityOrder {
			if n := r.BySeverity[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "Active findings by severity: %s.\n\n", strings.Join(parts, ", "))
		}
	}

	if len(r.New) > 0 {
		b.WriteString("### New\n\n")
		writeSummaryTable(&b, r.New, true)
	}
	if len(r.Resolved) > 0 {
		b.WriteString("### Resolved\n\n")
		writeSummaryTable(&b, r.Resolved, false)
	}

	if r.SkippedCount > 0 {
		fmt.Fprintf(&b, "%d malformed match%s skipped during ingestion.\n\n", r.SkippedCount, pluralES(r.SkippedCount))
	}

	fmt.Fprintf(&b, "<sub>scan %s</sub>\n", r.ScanID)
	return b.String()
}

func writeSummaryTable(b *strings.Builder, items []findings.FindingSummary, showReactivated bool) {
	sorted := make([]findings.FindingSummary, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FilePath != sorted[j].FilePath {
			return sorted[i].FilePath < sorted[j].FilePath
		}
		return sorted[i].LineNumber < sorted[j].LineNumber
	})

	b.WriteString("| Severity | Type | Location |\n")
	b.WriteString("|---|---|---|\n")
	for _, s := range sorted {
		location := fmt.Sprintf("`%s:%d`", s.FilePath, s.LineNumber)
		secretType := s.SecretType
		if showReactivated && s.Reactivated {
			secretType += " (reappeared)"
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", s.Severity, secretType, location)
	}
	b.WriteString("\n")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralES(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}
