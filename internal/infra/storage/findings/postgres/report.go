package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/internal/infra/storage"
)

var _ findings.ReportRepository = (*reportStore)(nil)

// reportStore implements findings.ReportRepository using PostgreSQL. The
// report body is stored as JSONB keyed by scan ID, which is what makes
// re-posting idempotent.
type reportStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewReportStore creates a PostgreSQL-backed report repository with tracing.
func NewReportStore(pool *pgxpool.Pool, tracer trace.Tracer) *reportStore {
	return &reportStore{db: pool, tracer: tracer}
}

// Upsert overwrites any existing report for the same scan.
func (r *reportStore) Upsert(ctx context.Context, report *findings.ScanReport) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scan_id", report.ScanID.String()),
		attribute.Int("new_count", report.NewCount),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.upsert_scan_report", dbAttrs, func(ctx context.Context) error {
		body, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encoding scan report: %w", err)
		}

		_, err = r.db.Exec(ctx, `
			INSERT INTO scan_reports (scan_id, repository_id, generated_at, report)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (scan_id) DO UPDATE SET
				generated_at = EXCLUDED.generated_at,
				report = EXCLUDED.report`,
			pgtype.UUID{Bytes: report.ScanID, Valid: true},
			pgtype.UUID{Bytes: report.RepositoryID, Valid: true},
			pgtype.Timestamptz{Time: report.GeneratedAt, Valid: true},
			body,
		)
		if err != nil {
			return fmt.Errorf("upsert scan report error: %w", err)
		}
		return nil
	})
}

// GetByScanID retrieves the report for a scan.
func (r *reportStore) GetByScanID(ctx context.Context, scanID uuid.UUID) (*findings.ScanReport, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("scan_id", scanID.String()))

	var report findings.ScanReport
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_scan_report", dbAttrs, func(ctx context.Context) error {
		var body []byte
		err := r.db.QueryRow(ctx,
			`SELECT report FROM scan_reports WHERE scan_id = $1`,
			pgtype.UUID{Bytes: scanID, Valid: true},
		).Scan(&body)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return findings.ErrReportNotFound
			}
			return fmt.Errorf("get scan report error: %w", err)
		}
		return json.Unmarshal(body, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}
