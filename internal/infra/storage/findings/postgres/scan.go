// Package postgres implements the findings persistence ports on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/internal/infra/storage"
)

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

var _ findings.ScanRepository = (*scanStore)(nil)

// scanStore implements findings.ScanRepository using PostgreSQL as the
// backing store.
type scanStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewScanStore creates a PostgreSQL-backed scan repository with tracing.
func NewScanStore(pool *pgxpool.Pool, tracer trace.Tracer) *scanStore {
	return &scanStore{db: pool, tracer: tracer}
}

// Create persists a new scan. A duplicate scan ID fails with
// ErrDuplicateScan so re-submissions are detectable.
func (r *scanStore) Create(ctx context.Context, s *findings.Scan) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scan_id", s.ID().String()),
		attribute.String("repository_id", s.RepositoryID().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_scan", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO scans (
				id, repository_id, commit_sha, branch, scan_type, status,
				triggered_by, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			pgtype.UUID{Bytes: s.ID(), Valid: true},
			pgtype.UUID{Bytes: s.RepositoryID(), Valid: true},
			s.CommitSHA(),
			s.Branch(),
			string(s.Type()),
			string(s.Status()),
			s.TriggeredBy(),
			pgtype.Timestamptz{Time: s.CreatedAt(), Valid: true},
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return findings.ErrDuplicateScan
			}
			return fmt.Errorf("create scan insert error: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a scan by ID.
func (r *scanStore) GetByID(ctx context.Context, id uuid.UUID) (*findings.Scan, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("scan_id", id.String()))

	var scan *findings.Scan
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_scan", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, selectScan+` WHERE id = $1`, pgtype.UUID{Bytes: id, Valid: true})
		var err error
		scan, err = scanScanRow(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// Update persists scan state changes.
func (r *scanStore) Update(ctx context.Context, s *findings.Scan) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scan_id", s.ID().String()),
		attribute.String("status", string(s.Status())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_scan", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, updateScanSQL, updateScanArgs(s)...)
		if err != nil {
			return fmt.Errorf("update scan error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return findings.ErrScanNotFound
		}
		return nil
	})
}

// LastReconciled returns the most recently reconciled scan for a repository.
func (r *scanStore) LastReconciled(ctx context.Context, repositoryID uuid.UUID) (*findings.Scan, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("repository_id", repositoryID.String()))

	var scan *findings.Scan
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.last_reconciled_scan", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, selectScan+`
			JOIN repository_reconciliation rr ON rr.last_scan_id = scans.id
			WHERE rr.repository_id = $1`,
			pgtype.UUID{Bytes: repositoryID, Valid: true},
		)
		var err error
		scan, err = scanScanRow(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

const selectScan = `
	SELECT scans.id, scans.repository_id, scans.commit_sha, scans.branch,
		scans.scan_type, scans.status,
		scans.files_scanned, scans.total_findings,
		scans.new_findings, scans.resolved_count, scans.by_severity,
		scans.suppressed_count, scans.skipped_count,
		scans.error_message, scans.triggered_by,
		scans.created_at, scans.started_at, scans.completed_at
	FROM scans`

const updateScanSQL = `
	UPDATE scans SET
		status = $2,
		files_scanned = $3,
		total_findings = $4,
		new_findings = $5,
		resolved_count = $6,
		by_severity = $7,
		suppressed_count = $8,
		skipped_count = $9,
		error_message = $10,
		started_at = $11,
		completed_at = $12
	WHERE id = $1`

func updateScanArgs(s *findings.Scan) []any {
	totals := s.Totals()
	bySeverity, _ := json.Marshal(severityCounts(totals.BySeverity))

	var startedAt, completedAt pgtype.Timestamptz
	if ts, ok := s.StartedAt(); ok {
		startedAt = pgtype.Timestamptz{Time: ts, Valid: true}
	}
	if ts, ok := s.CompletedAt(); ok {
		completedAt = pgtype.Timestamptz{Time: ts, Valid: true}
	}

	return []any{
		pgtype.UUID{Bytes: s.ID(), Valid: true},
		string(s.Status()),
		totals.FilesScanned,
		totals.TotalFindings,
		totals.NewFindings,
		totals.Resolved,
		bySeverity,
		totals.Suppressed,
		totals.Skipped,
		s.ErrorMessage(),
		startedAt,
		completedAt,
	}
}

// severityCounts normalizes a nil map so the JSONB column always holds an
// object.
func severityCounts(m map[findings.Severity]int) map[findings.Severity]int {
	if m == nil {
		return map[findings.Severity]int{}
	}
	return m
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRow(row rowScanner) (*findings.Scan, error) {
	var (
		id, repositoryID  pgtype.UUID
		commitSHA, branch string
		scanType, status  string
		filesScanned      int
		totalFindings     int
		newFindings       int
		resolvedCount     int
		bySeverityRaw     []byte
		suppressed        int
		skipped           int
		errorMessage      string
		triggeredBy       string
		createdAt         pgtype.Timestamptz
		startedAt         pgtype.Timestamptz
		completedAt       pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &repositoryID, &commitSHA, &branch,
		&scanType, &status,
		&filesScanned, &totalFindings,
		&newFindings, &resolvedCount, &bySeverityRaw,
		&suppressed, &skipped,
		&errorMessage, &triggeredBy,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, findings.ErrScanNotFound
		}
		return nil, fmt.Errorf("scan row error: %w", err)
	}

	bySeverity := make(map[findings.Severity]int)
	if len(bySeverityRaw) > 0 {
		if err := json.Unmarshal(bySeverityRaw, &bySeverity); err != nil {
			return nil, fmt.Errorf("decoding severity counts: %w", err)
		}
	}

	return findings.ReconstructScan(
		uuid.UUID(id.Bytes), uuid.UUID(repositoryID.Bytes),
		commitSHA, branch,
		findings.ScanType(scanType),
		findings.ScanStatus(status),
		findings.ScanTotals{
			FilesScanned:  filesScanned,
			TotalFindings: totalFindings,
			NewFindings:   newFindings,
			Resolved:      resolvedCount,
			BySeverity:    bySeverity,
			Suppressed:    suppressed,
			Skipped:       skipped,
		},
		errorMessage, triggeredBy,
		createdAt.Time,
		timestamptzPtr(startedAt), timestamptzPtr(completedAt),
	), nil
}

func timestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
