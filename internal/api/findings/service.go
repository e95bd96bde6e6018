// Package findings provides the HTTP API surface for scan ingestion,
// finding triage, and allowlist management.
package findings

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/leakwatch/leakwatch/internal/app/reconcile"
	"github.com/leakwatch/leakwatch/internal/app/reconcile/acl"
	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
)

// Service coordinates API operations against the reconciliation engine and
// its persistence ports. Handlers stay thin; parsing aside, every decision
// lives here or deeper.
type Service struct {
	log        *logger.Logger
	reconciler *reconcile.Reconciler
	triage     *reconcile.Triage
	translator acl.GitleaksTranslator

	findingRepo   findings.FindingRepository
	scanRepo      findings.ScanRepository
	allowlistRepo findings.AllowlistRepository
	reportRepo    findings.ReportRepository

	metrics Metrics
}

// NewService creates the API coordination service.
func NewService(
	log *logger.Logger,
	reconciler *reconcile.Reconciler,
	triage *reconcile.Triage,
	findingRepo findings.FindingRepository,
	scanRepo findings.ScanRepository,
	allowlistRepo findings.AllowlistRepository,
	reportRepo findings.ReportRepository,
	metrics Metrics,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		log:           log.With("component", "findings_api"),
		reconciler:    reconciler,
		triage:        triage,
		findingRepo:   findingRepo,
		scanRepo:      scanRepo,
		allowlistRepo: allowlistRepo,
		reportRepo:    reportRepo,
		metrics:       metrics,
	}
}

// SubmitScan registers a scan and reconciles its detector output in one
// request. The scan ID comes from the caller so resubmitting the same
// payload surfaces ErrDuplicateScan instead of double-processing.
func (s *Service) SubmitScan(
	ctx context.Context,
	scanID, repositoryID uuid.UUID,
	commitSHA, branch string,
	scanType findings.ScanType,
	triggeredBy string,
	detectorReport io.Reader,
) (*findings.Scan, *findings.ReconciliationResult, error) {
	s.metrics.IncScanSubmissions(ctx)

	matches, err := s.translator.DecodeReport(detectorReport)
	if err != nil {
		s.metrics.IncScanErrors(ctx, "bad_report")
		return nil, nil, fmt.Errorf("decoding detector report: %w", err)
	}

	scan, err := s.reconciler.SubmitScan(ctx, scanID, repositoryID, commitSHA, branch, scanType, triggeredBy)
	if err != nil {
		s.metrics.IncScanErrors(ctx, "submit")
		return nil, nil, err
	}

	result, err := s.reconciler.Reconcile(ctx, scan.ID(), matches)
	if err != nil {
		s.metrics.IncScanErrors(ctx, "reconcile")
		return nil, nil, err
	}

	// Reload so the response reflects the committed status and totals.
	scan, err = s.scanRepo.GetByID(ctx, scan.ID())
	if err != nil {
		return nil, nil, fmt.Errorf("reloading scan %s: %w", scanID, err)
	}
	return scan, result, nil
}

// GetScan loads one scan.
func (s *Service) GetScan(ctx context.Context, scanID uuid.UUID) (*findings.Scan, error) {
	return s.scanRepo.GetByID(ctx, scanID)
}

// GetReport loads the stored diff report for a scan.
func (s *Service) GetReport(ctx context.Context, scanID uuid.UUID) (*findings.ScanReport, error) {
	return s.reportRepo.GetByScanID(ctx, scanID)
}

// ListFindings returns a filtered page of findings.
func (s *Service) ListFindings(ctx context.Context, filter findings.FindingFilter) (findings.FindingPage, error) {
	return s.findingRepo.List(ctx, filter)
}

// GetFinding loads one finding.
func (s *Service) GetFinding(ctx context.Context, findingID uuid.UUID) (*findings.Finding, error) {
	return s.findingRepo.GetByID(ctx, findingID)
}

// relatedWindowDays bounds how far back RelatedFindings looks.
const relatedWindowDays = 30

// Statistics aggregates finding counts, optionally scoped to one repository.
// window bounds the trend counters.
func (s *Service) Statistics(ctx context.Context, repositoryID *uuid.UUID, window time.Duration) (findings.FindingStats, error) {
	return s.findingRepo.Stats(ctx, findings.StatsQuery{
		RepositoryID: repositoryID,
		WindowStart:  timeNow().Add(-window),
	})
}

// RelatedFindings returns findings likely tied to the same exposure as the
// given one: same repository and secret type, same file or directory, seen
// recently.
func (s *Service) RelatedFindings(ctx context.Context, findingID uuid.UUID) ([]*findings.Finding, error) {
	f, err := s.findingRepo.GetByID(ctx, findingID)
	if err != nil {
		return nil, err
	}
	return s.findingRepo.ListRelated(ctx, f, timeNow().AddDate(0, 0, -relatedWindowDays))
}

// TriageFinding applies a manual status change to a finding. learn only
// applies to false-positive transitions.
func (s *Service) TriageFinding(
	ctx context.Context,
	findingID uuid.UUID,
	target findings.Status,
	actor, note string,
	learn bool,
) (*findings.Finding, error) {
	s.metrics.IncTriageActions(ctx, target.String())

	switch target {
	case findings.StatusResolved:
		return s.triage.Resolve(ctx, findingID, actor, note)
	case findings.StatusFalsePositive:
		return s.triage.MarkFalsePositive(ctx, findingID, actor, note, learn)
	case findings.StatusIgnored:
		return s.triage.Ignore(ctx, findingID, actor, note)
	case findings.StatusActive:
		return s.triage.Reopen(ctx, findingID, actor)
	default:
		return nil, fmt.Errorf("%w: unknown target status %q", findings.ErrInvalidTransition, target)
	}
}

// CreateAllowlistEntry persists a new suppression entry.
func (s *Service) CreateAllowlistEntry(
	ctx context.Context,
	kind findings.AllowlistKind,
	repositoryID *uuid.UUID,
	pattern, reason string,
) (*findings.AllowlistEntry, error) {
	scope := findings.ScopeGlobal
	if repositoryID != nil {
		scope = findings.ScopeRepository
	}
	entry := findings.NewAllowlistEntry(kind, scope, repositoryID, pattern, reason, timeNow())
	if err := s.allowlistRepo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("creating allowlist entry: %w", err)
	}
	return entry, nil
}

// ListAllowlist returns the entries effective for a repository, or the
// global entries when repositoryID is nil.
func (s *Service) ListAllowlist(ctx context.Context, repositoryID *uuid.UUID) ([]*findings.AllowlistEntry, error) {
	id := uuid.Nil
	if repositoryID != nil {
		id = *repositoryID
	}
	return s.allowlistRepo.GetEffective(ctx, id)
}

// DeactivateAllowlistEntry turns an entry off. The entry and its match
// counters survive for audit.
func (s *Service) DeactivateAllowlistEntry(ctx context.Context, entryID uuid.UUID) error {
	return s.allowlistRepo.Deactivate(ctx, entryID)
}

// timeNow is swapped in tests.
var timeNow = func() time.Time { return time.Now().UTC() }
