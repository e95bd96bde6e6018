// Package acl translates external scanner output into the findings domain.
package acl

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zricethezav/gitleaks/v8/report"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// GitleaksTranslator converts gitleaks report findings into raw matches. It
// is the only place gitleaks types are visible; the domain never imports the
// scanner's vocabulary.
type GitleaksTranslator struct{}

// Translate maps one gitleaks finding to a raw match. Validation happens
// later in the pipeline, so a malformed entry translates rather than errors.
func (GitleaksTranslator) Translate(f report.Finding) findings.RawMatch {
	return findings.RawMatch{
		FilePath:     f.File,
		LineNumber:   f.StartLine,
		StartColumn:  f.StartColumn,
		EndColumn:    f.EndColumn,
		Secret:       f.Secret,
		RuleID:       f.RuleID,
		Entropy:      float64(f.Entropy),
		CommitSHA:    f.Commit,
		CommitAuthor: f.Author,
		CommitDate:   parseCommitDate(f.Date),
	}
}

// TranslateAll maps a full gitleaks report.
func (t GitleaksTranslator) TranslateAll(fs []report.Finding) []findings.RawMatch {
	out := make([]findings.RawMatch, 0, len(fs))
	for _, f := range fs {
		out = append(out, t.Translate(f))
	}
	return out
}

// DecodeReport reads a gitleaks JSON report, the format produced by
// `gitleaks detect --report-format json`, and translates it. The decoded
// report, including secret values, lives only for the duration of the call
// chain that fingerprints it.
func (t GitleaksTranslator) DecodeReport(r io.Reader) ([]findings.RawMatch, error) {
	var fs []report.Finding
	if err := json.NewDecoder(r).Decode(&fs); err != nil {
		return nil, fmt.Errorf("decoding gitleaks report: %w", err)
	}
	return t.TranslateAll(fs), nil
}

// parseCommitDate accepts the timestamp format gitleaks emits. An
// unparseable date degrades to the zero time rather than dropping the match.
func parseCommitDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
