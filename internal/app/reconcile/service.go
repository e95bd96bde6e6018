package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
)

// Reconciler runs the per-scan reconciliation pass: derive candidates from
// raw matches, diff them against the repository's tracked findings, and
// commit the outcome atomically. Two concurrent passes for the same
// repository serialize on the persistence layer's reconciliation lock; a
// pass for an out-of-date scan fails with ErrStaleScan instead of rewinding
// newer state.
type Reconciler struct {
	findingRepo   findings.FindingRepository
	scanRepo      findings.ScanRepository
	allowlistRepo findings.AllowlistRepository
	reportRepo    findings.ReportRepository
	publisher     findings.TransitionPublisher
	pipeline      *Pipeline

	maxCommitRetries uint64

	logger *logger.Logger
	tracer trace.Tracer
}

// NewReconciler wires a Reconciler from its persistence ports and the
// candidate pipeline. maxCommitRetries bounds the retries of a commit that
// lost a lock race; stale-scan failures are never retried.
func NewReconciler(
	findingRepo findings.FindingRepository,
	scanRepo findings.ScanRepository,
	allowlistRepo findings.AllowlistRepository,
	reportRepo findings.ReportRepository,
	publisher findings.TransitionPublisher,
	pipeline *Pipeline,
	maxCommitRetries uint64,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Reconciler {
	return &Reconciler{
		findingRepo:      findingRepo,
		scanRepo:         scanRepo,
		allowlistRepo:    allowlistRepo,
		reportRepo:       reportRepo,
		publisher:        publisher,
		pipeline:         pipeline,
		maxCommitRetries: maxCommitRetries,
		logger:           logger.With("component", "reconciler"),
		tracer:           tracer,
	}
}

// SubmitScan registers a pending scan for later reconciliation. The scan ID
// comes from the caller so resubmissions of the same payload are detectable.
func (r *Reconciler) SubmitScan(
	ctx context.Context,
	scanID, repositoryID uuid.UUID,
	commitSHA, branch string,
	scanType findings.ScanType,
	triggeredBy string,
) (*findings.Scan, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.submit_scan",
		trace.WithAttributes(
			attribute.String("scan_id", scanID.String()),
			attribute.String("repository_id", repositoryID.String()),
		),
	)
	defer span.End()

	scan := findings.NewScan(scanID, repositoryID, commitSHA, branch, scanType, triggeredBy, time.Now().UTC())
	if err := r.scanRepo.Create(ctx, scan); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create scan")
		return nil, fmt.Errorf("creating scan %s: %w", scanID, err)
	}
	span.AddEvent("scan_created")
	return scan, nil
}

// Reconcile executes the full pass for one scan's matches and returns the
// diff. The scan must be pending. On success the scan is completed and the
// diff report is stored; on a stale-scan failure the scan is marked failed
// and newer state is left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, scanID uuid.UUID, matches []findings.RawMatch) (*findings.ReconciliationResult, error) {
	log := r.logger.With("operation", "reconcile", "scan_id", scanID)
	ctx, span := r.tracer.Start(ctx, "reconciler.reconcile",
		trace.WithAttributes(
			attribute.String("scan_id", scanID.String()),
			attribute.Int("match_count", len(matches)),
		),
	)
	defer span.End()

	scan, err := r.scanRepo.GetByID(ctx, scanID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading scan %s: %w", scanID, err)
	}
	repoID := scan.RepositoryID()
	span.SetAttributes(attribute.String("repository_id", repoID.String()))

	if err := scan.Start(time.Now().UTC()); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("starting scan %s: %w", scanID, err)
	}
	if err := r.scanRepo.Update(ctx, scan); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persisting scan start: %w", err)
	}
	span.AddEvent("scan_started")

	entries, err := r.allowlistRepo.GetEffective(ctx, repoID)
	if err != nil {
		return nil, r.failScan(ctx, scan, fmt.Errorf("loading allowlist: %w", err))
	}
	allowlist := findings.NewAllowlist(entries)
	for _, cfgErr := range allowlist.ConfigErrors() {
		log.Warn(ctx, "Allowlist entry unusable; treated as non-matching", "error", cfgErr.Error())
	}

	pres, err := r.pipeline.Derive(ctx, matches, allowlist)
	if err != nil {
		return nil, r.failScan(ctx, scan, fmt.Errorf("deriving candidates: %w", err))
	}

	// The diff is built inside CommitReconciliation, under the repository's
	// lock, so the tracked set it sees is the one the commit applies to. A
	// retried attempt re-reads and re-diffs against fresh state.
	var diff scanDiff
	var committed findings.Scan
	build := func(tracked []*findings.Finding) (findings.ReconciliationCommit, error) {
		now := time.Now().UTC()
		diff = r.diff(scan, tracked, pres, now)

		working := *scan
		if err := working.Complete(diff.totals, now); err != nil {
			return findings.ReconciliationCommit{}, fmt.Errorf("completing scan: %w", err)
		}
		committed = working
		return findings.ReconciliationCommit{Scan: &working, Creates: diff.creates, Updates: diff.updates}, nil
	}

	if err := r.commitWithRetry(ctx, scan, build); err != nil {
		span.RecordError(err)
		if errors.Is(err, findings.ErrStaleScan) {
			span.SetStatus(codes.Error, "scan superseded by newer reconciliation")
			return nil, r.failScan(ctx, scan, err)
		}
		span.SetStatus(codes.Error, "reconciliation commit failed")
		return nil, err
	}
	*scan = committed
	now := time.Now().UTC()
	span.AddEvent("reconciliation_committed")

	r.storeReport(ctx, scan, diff, log)

	// Counter updates and notifications ride behind the commit and never
	// undo it.
	if len(pres.MatchedEntryIDs) > 0 {
		if err := r.allowlistRepo.RecordMatches(ctx, pres.MatchedEntryIDs, now); err != nil {
			log.Warn(ctx, "Failed to record allowlist match counters", "error", err.Error())
		}
	}
	if len(diff.events) > 0 && r.publisher != nil {
		if err := r.publisher.Publish(ctx, diff.events); err != nil {
			log.Warn(ctx, "Failed to publish transition events", "error", err.Error())
		}
	}

	log.Info(ctx, "Reconciliation pass complete",
		"new", len(diff.result.New),
		"still_active", len(diff.result.StillActive),
		"resolved", len(diff.result.Resolved),
		"suppressed", diff.result.Suppressed,
		"skipped", diff.result.Skipped,
	)
	span.SetStatus(codes.Ok, "reconciliation complete")
	return diff.result, nil
}

// scanDiff carries the intermediate products of one diff so the commit,
// report and notification steps all see the same view.
type scanDiff struct {
	result  *findings.ReconciliationResult
	creates []*findings.Finding
	updates []*findings.Finding
	events  []findings.TransitionEvent
	totals  findings.ScanTotals
}

// diff compares the scan's candidates against the repository's tracked
// findings. Candidates sharing an identity key within one scan collapse to a
// single finding; tracked active findings absent from the scan resolve.
func (r *Reconciler) diff(scan *findings.Scan, tracked []*findings.Finding, pres PipelineResult, now time.Time) scanDiff {
	repoID := scan.RepositoryID()
	scanID := scan.ID()

	byKey := make(map[findings.IdentityKey]*findings.Finding, len(tracked))
	for _, f := range tracked {
		byKey[f.IdentityKey()] = f
	}

	d := scanDiff{result: &findings.ReconciliationResult{Skipped: pres.Skipped}}
	bySeverity := make(map[findings.Severity]int)
	seen := make(map[findings.IdentityKey]struct{}, len(pres.Candidates))

	for _, c := range pres.Candidates {
		if c.Suppressed {
			d.result.Suppressed++
			continue
		}
		key := c.IdentityKey(repoID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		bySeverity[c.Severity]++

		existing, ok := byKey[key]
		if !ok {
			f := findings.NewFinding(repoID, scanID, c, now)
			d.creates = append(d.creates, f)
			d.result.New = append(d.result.New, f)
			d.events = append(d.events, transitionEvent(findings.EventFindingCreated, f, scanID, now))
			continue
		}

		// Ignored and false-positive findings hold their identity key but
		// stay untouched: no observation, no duplicate, no event.
		switch existing.Status() {
		case findings.StatusActive:
			if err := existing.Observe(scanID, now); err != nil {
				continue
			}
			d.updates = append(d.updates, existing)
			d.result.StillActive = append(d.result.StillActive, existing)
		case findings.StatusResolved:
			if err := existing.Reactivate(scanID, now); err != nil {
				continue
			}
			d.updates = append(d.updates, existing)
			// A reappearing secret is news regardless of its history.
			d.result.New = append(d.result.New, existing)
			d.events = append(d.events, transitionEvent(findings.EventFindingReactivated, existing, scanID, now))
		}
	}

	for _, f := range tracked {
		if f.Status() != findings.StatusActive {
			continue
		}
		if _, present := seen[f.IdentityKey()]; present {
			continue
		}
		if err := f.Resolve(now, findings.SystemResolver, "absent from scan "+scan.CommitSHA()); err != nil {
			continue
		}
		d.updates = append(d.updates, f)
		d.result.Resolved = append(d.result.Resolved, f)
		d.events = append(d.events, transitionEvent(findings.EventFindingResolved, f, scanID, now))
	}

	d.totals = findings.ScanTotals{
		TotalFindings: len(seen),
		NewFindings:   len(d.result.New),
		Resolved:      len(d.result.Resolved),
		BySeverity:    bySeverity,
		Suppressed:    d.result.Suppressed,
		Skipped:       d.result.Skipped,
	}
	return d
}

// commitWithRetry runs the locked read-diff-commit cycle, retrying bounded
// times when another pass for the same repository won the lock race. Each
// attempt rebuilds the commit from fresh tracked state. Staleness is
// permanent.
func (r *Reconciler) commitWithRetry(ctx context.Context, scan *findings.Scan, build findings.ReconcileFunc) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second

	operation := func() error {
		err := r.findingRepo.CommitReconciliation(ctx, scan, build)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, findings.ErrStaleScan):
			return backoff.Permanent(err)
		case errors.Is(err, findings.ErrReconciliationConflict):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	if err := backoff.Retry(operation, backoff.WithMaxRetries(expBackoff, r.maxCommitRetries)); err != nil {
		return fmt.Errorf("committing reconciliation for scan %s: %w", scan.ID(), err)
	}
	return nil
}

// failScan marks the scan failed with a redacted message and returns the
// original error for the caller.
func (r *Reconciler) failScan(ctx context.Context, scan *findings.Scan, cause error) error {
	if err := scan.Fail(cause.Error(), time.Now().UTC()); err == nil {
		if updErr := r.scanRepo.Update(ctx, scan); updErr != nil {
			r.logger.Error(ctx, "Failed to persist scan failure", "scan_id", scan.ID(), "error", updErr.Error())
		}
	}
	return cause
}

// storeReport builds and upserts the scan's diff report. Reporting is
// best-effort: a failure here never fails the reconciliation.
func (r *Reconciler) storeReport(ctx context.Context, scan *findings.Scan, diff scanDiff, log *logger.Logger) {
	report := buildReport(scan, diff.result, time.Now().UTC())
	if err := r.reportRepo.Upsert(ctx, report); err != nil {
		log.Warn(ctx, "Failed to store scan report", "error", err.Error())
	}
}

func transitionEvent(t findings.TransitionEventType, f *findings.Finding, scanID uuid.UUID, now time.Time) findings.TransitionEvent {
	return findings.TransitionEvent{
		Type:         t,
		FindingID:    f.ID(),
		RepositoryID: f.RepositoryID(),
		ScanID:       scanID,
		FilePath:     f.FilePath(),
		LineNumber:   f.LineNumber(),
		SecretType:   f.SecretType(),
		Severity:     f.Severity(),
		OccurredAt:   now,
	}
}
