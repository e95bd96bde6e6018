package findings

import (
	"time"

	"github.com/google/uuid"
)

// CandidateFinding is a raw match after fingerprinting and allowlist
// evaluation. It carries no secret material and lives only until the scan's
// reconciliation pass completes; its durable counterpart is Finding.
type CandidateFinding struct {
	FilePath     string
	LineNumber   int
	StartColumn  int
	EndColumn    int
	SecretType   string
	Fingerprint  Fingerprint
	RuleID       string
	Entropy      float64
	CommitSHA    string
	CommitAuthor string
	CommitDate   time.Time
	Severity     Severity
	Suppressed   bool
}

// NewCandidate derives a candidate from a validated raw match. The severity
// map and the suppression verdict come from the caller so the derivation
// stays pure.
func NewCandidate(m RawMatch, severities SeverityMap, suppressed bool) CandidateFinding {
	return CandidateFinding{
		FilePath:     m.FilePath,
		LineNumber:   m.LineNumber,
		StartColumn:  m.StartColumn,
		EndColumn:    m.EndColumn,
		SecretType:   NormalizeSecretType(m.RuleID),
		Fingerprint:  ComputeFingerprint(m.Secret),
		RuleID:       m.RuleID,
		Entropy:      m.Entropy,
		CommitSHA:    m.CommitSHA,
		CommitAuthor: m.CommitAuthor,
		CommitDate:   m.CommitDate,
		Severity:     severities.Resolve(m.RuleID),
		Suppressed:   suppressed,
	}
}

// IdentityKey returns the cross-scan identity for this candidate within the
// given repository.
func (c CandidateFinding) IdentityKey(repositoryID uuid.UUID) IdentityKey {
	return IdentityKey{
		RepositoryID: repositoryID,
		FilePath:     c.FilePath,
		LineNumber:   c.LineNumber,
		Fingerprint:  c.Fingerprint,
	}
}
