package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

func sampleReport() *findings.ScanReport {
	return &findings.ScanReport{
		ScanID:           uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		RepositoryID:     uuid.New(),
		GeneratedAt:      time.Now(),
		NewCount:         2,
		ResolvedCount:    1,
		StillActiveCount: 3,
		SuppressedCount:  4,
		BySeverity: map[findings.Severity]int{
			findings.SeverityCritical: 1,
			findings.SeverityMedium:   4,
		},
		New: []findings.FindingSummary{
			{
				FindingID:  uuid.New(),
				FilePath:   "src/config.js",
				LineNumber: 15,
				SecretType: "aws_access_token",
				Severity:   findings.SeverityCritical,
			},
			{
				FindingID:   uuid.New(),
				FilePath:    "src/app.js",
				LineNumber:  9,
				SecretType:  "generic_api_key",
				Severity:    findings.SeverityMedium,
				Reactivated: true,
			},
		},
		Resolved: []findings.FindingSummary{
			{
				FindingID:  uuid.New(),
				FilePath:   "src/old.js",
				LineNumber: 3,
				SecretType: "github_pat",
				Severity:   findings.SeverityHigh,
			},
		},
	}
}

func TestRenderMarkdown_NewFindings(t *testing.T) {
	t.Parallel()

	md := RenderMarkdown(sampleReport())

	assert.Contains(t, md, "## Secret Scan: 2 new findings")
	assert.Contains(t, md, "| 2 | 1 | 3 | 4 |")
	assert.Contains(t, md, "1 critical, 4 medium")
	assert.Contains(t, md, "`src/config.js:15`")
	assert.Contains(t, md, "generic_api_key (reappeared)")
	assert.Contains(t, md, "### Resolved")
	assert.Contains(t, md, "scan 11111111-2222-3333-4444-555555555555")
}

func TestRenderMarkdown_SortsByLocation(t *testing.T) {
	t.Parallel()

	md := RenderMarkdown(sampleReport())
	require.Less(t,
		strings.Index(md, "src/app.js"),
		strings.Index(md, "src/config.js"),
		"rows sort by path then line",
	)
}

func TestRenderMarkdown_AllClear(t *testing.T) {
	t.Parallel()

	r := &findings.ScanReport{ScanID: uuid.New(), ResolvedCount: 2}
	md := RenderMarkdown(r)
	assert.Contains(t, md, "all clear")
	assert.NotContains(t, md, "### New")
}

func TestRenderMarkdown_NoChanges(t *testing.T) {
	t.Parallel()

	md := RenderMarkdown(&findings.ScanReport{ScanID: uuid.New()})
	assert.Contains(t, md, "no changes")
}

func TestRenderMarkdown_SkippedNote(t *testing.T) {
	t.Parallel()

	md := RenderMarkdown(&findings.ScanReport{ScanID: uuid.New(), SkippedCount: 3})
	assert.Contains(t, md, "3 malformed matches skipped")
}
