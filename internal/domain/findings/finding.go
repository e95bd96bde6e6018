package findings

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SystemResolver identifies automatic reconciliation as the actor behind a
// resolution, as opposed to a named user.
const SystemResolver = "system"

// Finding is the durable, cross-scan record of one secret occurrence. It
// stores only the fingerprint and location metadata; the secret value and
// the surrounding source never reach this type.
type Finding struct {
	id              uuid.UUID
	repositoryID    uuid.UUID
	firstSeenScanID uuid.UUID
	lastSeenScanID  uuid.UUID
	filePath        string
	lineNumber      int
	fingerprint     Fingerprint
	secretType      string
	ruleID          string
	entropy         float64
	commitSHA       string
	commitAuthor    string
	commitDate      time.Time
	severity        Severity
	status          Status
	resolvedAt      *time.Time
	resolvedBy      string
	resolutionNote  string
	createdAt       time.Time
	updatedAt       time.Time
}

// NewFinding creates an active finding from a candidate first observed by
// the given scan.
func NewFinding(repositoryID, scanID uuid.UUID, c CandidateFinding, now time.Time) *Finding {
	return &Finding{
		id:              uuid.New(),
		repositoryID:    repositoryID,
		firstSeenScanID: scanID,
		lastSeenScanID:  scanID,
		filePath:        c.FilePath,
		lineNumber:      c.LineNumber,
		fingerprint:     c.Fingerprint,
		secretType:      c.SecretType,
		ruleID:          c.RuleID,
		entropy:         c.Entropy,
		commitSHA:       c.CommitSHA,
		commitAuthor:    c.CommitAuthor,
		commitDate:      c.CommitDate,
		severity:        c.Severity,
		status:          StatusActive,
		createdAt:       now,
		updatedAt:       now,
	}
}

// ReconstructFinding creates a Finding from stored fields, bypassing
// creation invariants. This should only be used by repositories when loading
// from the DB.
func ReconstructFinding(
	id, repositoryID, firstSeenScanID, lastSeenScanID uuid.UUID,
	filePath string,
	lineNumber int,
	fingerprint Fingerprint,
	secretType, ruleID string,
	entropy float64,
	commitSHA, commitAuthor string,
	commitDate time.Time,
	severity Severity,
	status Status,
	resolvedAt *time.Time,
	resolvedBy, resolutionNote string,
	createdAt, updatedAt time.Time,
) *Finding {
	return &Finding{
		id:              id,
		repositoryID:    repositoryID,
		firstSeenScanID: firstSeenScanID,
		lastSeenScanID:  lastSeenScanID,
		filePath:        filePath,
		lineNumber:      lineNumber,
		fingerprint:     fingerprint,
		secretType:      secretType,
		ruleID:          ruleID,
		entropy:         entropy,
		commitSHA:       commitSHA,
		commitAuthor:    commitAuthor,
		commitDate:      commitDate,
		severity:        severity,
		status:          status,
		resolvedAt:      resolvedAt,
		resolvedBy:      resolvedBy,
		resolutionNote:  resolutionNote,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (f *Finding) ID() uuid.UUID              { return f.id }
func (f *Finding) RepositoryID() uuid.UUID    { return f.repositoryID }
func (f *Finding) FirstSeenScanID() uuid.UUID { return f.firstSeenScanID }
func (f *Finding) LastSeenScanID() uuid.UUID  { return f.lastSeenScanID }
func (f *Finding) FilePath() string           { return f.filePath }
func (f *Finding) LineNumber() int            { return f.lineNumber }
func (f *Finding) Fingerprint() Fingerprint   { return f.fingerprint }
func (f *Finding) SecretType() string         { return f.secretType }
func (f *Finding) RuleID() string             { return f.ruleID }
func (f *Finding) Entropy() float64           { return f.entropy }
func (f *Finding) CommitSHA() string          { return f.commitSHA }
func (f *Finding) CommitAuthor() string       { return f.commitAuthor }
func (f *Finding) CommitDate() time.Time      { return f.commitDate }
func (f *Finding) Severity() Severity         { return f.severity }
func (f *Finding) Status() Status             { return f.status }
func (f *Finding) ResolvedBy() string         { return f.resolvedBy }
func (f *Finding) ResolutionNote() string     { return f.resolutionNote }
func (f *Finding) CreatedAt() time.Time       { return f.createdAt }
func (f *Finding) UpdatedAt() time.Time       { return f.updatedAt }

// ResolvedAt returns when the finding was resolved, if it ever was.
func (f *Finding) ResolvedAt() (time.Time, bool) {
	if f.resolvedAt == nil {
		return time.Time{}, false
	}
	return *f.resolvedAt, true
}

// IdentityKey returns the cross-scan identity for this finding.
func (f *Finding) IdentityKey() IdentityKey {
	return IdentityKey{
		RepositoryID: f.repositoryID,
		FilePath:     f.filePath,
		LineNumber:   f.lineNumber,
		Fingerprint:  f.fingerprint,
	}
}

// Observe records that the given scan saw this finding again. Only active
// findings are observed; resolved findings reactivate instead.
func (f *Finding) Observe(scanID uuid.UUID, now time.Time) error {
	if f.status != StatusActive {
		return fmt.Errorf("cannot observe finding in status %s", f.status)
	}
	f.lastSeenScanID = scanID
	f.updatedAt = now
	return nil
}

// Resolve transitions the finding to resolved because the latest scan no
// longer reports its identity key, or because a user resolved it manually.
func (f *Finding) Resolve(now time.Time, resolvedBy, note string) error {
	if err := f.status.ValidateTransition(StatusResolved); err != nil {
		return err
	}
	f.status = StatusResolved
	f.resolvedAt = &now
	f.resolvedBy = resolvedBy
	f.resolutionNote = note
	f.updatedAt = now
	return nil
}

// Reactivate flips a resolved finding back to active upon reappearance. The
// first-seen scan reference is preserved; only last-seen moves forward.
func (f *Finding) Reactivate(scanID uuid.UUID, now time.Time) error {
	if err := f.status.ValidateTransition(StatusActive); err != nil {
		return err
	}
	f.status = StatusActive
	f.lastSeenScanID = scanID
	f.resolvedAt = nil
	f.resolvedBy = ""
	f.resolutionNote = ""
	f.updatedAt = now
	return nil
}

// MarkFalsePositive transitions the finding to its terminal state. Requires
// an explicit external actor; reconciliation never calls this.
func (f *Finding) MarkFalsePositive(now time.Time, actor, note string) error {
	if err := f.status.ValidateTransition(StatusFalsePositive); err != nil {
		return err
	}
	f.status = StatusFalsePositive
	f.resolvedAt = &now
	f.resolvedBy = actor
	f.resolutionNote = note
	f.updatedAt = now
	return nil
}

// Ignore stops tracking the finding without judging its validity.
func (f *Finding) Ignore(now time.Time, actor, note string) error {
	if err := f.status.ValidateTransition(StatusIgnored); err != nil {
		return err
	}
	f.status = StatusIgnored
	f.resolvedAt = &now
	f.resolvedBy = actor
	f.resolutionNote = note
	f.updatedAt = now
	return nil
}

// Reopen puts an ignored or false-positive finding back under active
// tracking. This is the one deliberate escape from the terminal
// false-positive state and always represents an explicit external action.
func (f *Finding) Reopen(now time.Time, actor string) error {
	if f.status != StatusIgnored && f.status != StatusFalsePositive {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, f.status, StatusActive)
	}
	f.status = StatusActive
	f.resolvedAt = nil
	f.resolvedBy = ""
	f.resolutionNote = "reopened by " + actor
	f.updatedAt = now
	return nil
}
