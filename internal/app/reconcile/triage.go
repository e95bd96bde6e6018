package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
)

// Triage applies manual status decisions to findings: resolutions, false
// positives, ignores and reopens. These are the paths that require a named
// actor; reconciliation never takes them.
type Triage struct {
	findingRepo   findings.FindingRepository
	allowlistRepo findings.AllowlistRepository

	logger *logger.Logger
	tracer trace.Tracer
}

// NewTriage returns a Triage over the given persistence ports.
func NewTriage(
	findingRepo findings.FindingRepository,
	allowlistRepo findings.AllowlistRepository,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Triage {
	return &Triage{
		findingRepo:   findingRepo,
		allowlistRepo: allowlistRepo,
		logger:        logger.With("component", "triage"),
		tracer:        tracer,
	}
}

// Resolve marks a finding resolved on behalf of a user, ahead of the scan
// that would observe the removal.
func (t *Triage) Resolve(ctx context.Context, findingID uuid.UUID, actor, note string) (*findings.Finding, error) {
	return t.apply(ctx, "resolve", findingID, func(f *findings.Finding, now time.Time) error {
		return f.Resolve(now, actor, note)
	})
}

// MarkFalsePositive moves a finding to its terminal state. When learn is
// set, the finding's fingerprint is added to the repository's allowlist so
// future scans suppress the same value without re-triage.
func (t *Triage) MarkFalsePositive(ctx context.Context, findingID uuid.UUID, actor, note string, learn bool) (*findings.Finding, error) {
	f, err := t.apply(ctx, "mark_false_positive", findingID, func(f *findings.Finding, now time.Time) error {
		return f.MarkFalsePositive(now, actor, note)
	})
	if err != nil {
		return nil, err
	}

	if learn {
		repoID := f.RepositoryID()
		entry := findings.NewAllowlistEntry(
			findings.AllowlistKindFingerprint,
			findings.ScopeRepository,
			&repoID,
			string(f.Fingerprint()),
			fmt.Sprintf("false positive marked by %s", actor),
			time.Now().UTC(),
		)
		// Learning is best-effort: the triage decision stands even if the
		// allowlist write fails.
		if err := t.allowlistRepo.Create(ctx, entry); err != nil {
			t.logger.Warn(ctx, "Failed to learn false-positive fingerprint",
				"finding_id", findingID,
				"error", err.Error(),
			)
		}
	}
	return f, nil
}

// Ignore stops tracking a finding without judging its validity.
func (t *Triage) Ignore(ctx context.Context, findingID uuid.UUID, actor, note string) (*findings.Finding, error) {
	return t.apply(ctx, "ignore", findingID, func(f *findings.Finding, now time.Time) error {
		return f.Ignore(now, actor, note)
	})
}

// Reopen puts an ignored or false-positive finding back under tracking.
func (t *Triage) Reopen(ctx context.Context, findingID uuid.UUID, actor string) (*findings.Finding, error) {
	return t.apply(ctx, "reopen", findingID, func(f *findings.Finding, now time.Time) error {
		return f.Reopen(now, actor)
	})
}

func (t *Triage) apply(
	ctx context.Context,
	operation string,
	findingID uuid.UUID,
	change func(*findings.Finding, time.Time) error,
) (*findings.Finding, error) {
	ctx, span := t.tracer.Start(ctx, "triage."+operation,
		trace.WithAttributes(attribute.String("finding_id", findingID.String())),
	)
	defer span.End()

	f, err := t.findingRepo.GetByID(ctx, findingID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading finding %s: %w", findingID, err)
	}
	if err := change(f, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := t.findingRepo.Update(ctx, f); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persisting finding %s: %w", findingID, err)
	}
	span.AddEvent("finding_updated")
	return f, nil
}
