package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
)

func testPipeline(workers int) *Pipeline {
	return NewPipeline(
		findings.DefaultSeverityMap(),
		workers,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
}

func TestPipeline_DerivePreservesOrder(t *testing.T) {
	t.Parallel()

	matches := make([]findings.RawMatch, 100)
	for i := range matches {
		matches[i] = findings.RawMatch{
			FilePath:   fmt.Sprintf("src/file_%03d.js", i),
			LineNumber: i + 1,
			Secret:     fmt.Sprintf("secret-value-%03d", i),
			RuleID:     "generic-api-key",
		}
	}

	res, err := testPipeline(8).Derive(context.Background(), matches, findings.NewAllowlist(nil))
	require.NoError(t, err)
	require.Len(t, res.Candidates, 100)

	for i, c := range res.Candidates {
		assert.Equal(t, fmt.Sprintf("src/file_%03d.js", i), c.FilePath)
		assert.Equal(t, i+1, c.LineNumber)
	}
}

func TestPipeline_SkipsMalformedWithoutFailing(t *testing.T) {
	t.Parallel()

	matches := []findings.RawMatch{
		{FilePath: "", LineNumber: 1, Secret: "x"},
		{FilePath: "a.js", LineNumber: 0, Secret: "x"},
		{FilePath: "a.js", LineNumber: 1, Secret: ""},
		{FilePath: "a.js", LineNumber: 2, Secret: "valid-secret", RuleID: "generic-api-key"},
	}

	res, err := testPipeline(2).Derive(context.Background(), matches, findings.NewAllowlist(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, 2, res.Candidates[0].LineNumber)
}

func TestPipeline_DeduplicatesMatchedEntries(t *testing.T) {
	t.Parallel()

	entry := findings.NewAllowlistEntry(findings.AllowlistKindStopword, findings.ScopeGlobal, nil, "example", "", time.Now())
	allowlist := findings.NewAllowlist([]*findings.AllowlistEntry{entry})

	matches := []findings.RawMatch{
		{FilePath: "a.js", LineNumber: 1, Secret: "example-one"},
		{FilePath: "a.js", LineNumber: 2, Secret: "example-two"},
		{FilePath: "a.js", LineNumber: 3, Secret: "example-three"},
	}

	res, err := testPipeline(4).Derive(context.Background(), matches, allowlist)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)
	for _, c := range res.Candidates {
		assert.True(t, c.Suppressed)
	}
	require.Len(t, res.MatchedEntryIDs, 1, "one entry credited once regardless of match count")
	assert.Equal(t, entry.ID(), res.MatchedEntryIDs[0])
}

func TestPipeline_SingleWorker(t *testing.T) {
	t.Parallel()

	matches := []findings.RawMatch{
		{FilePath: "a.js", LineNumber: 1, Secret: "secret-a", RuleID: "aws-access-token"},
		{FilePath: "b.js", LineNumber: 2, Secret: "secret-b", RuleID: "github-pat"},
	}

	res, err := testPipeline(1).Derive(context.Background(), matches, findings.NewAllowlist(nil))
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, findings.SeverityCritical, res.Candidates[0].Severity)
	assert.Equal(t, findings.SeverityHigh, res.Candidates[1].Severity)
}
