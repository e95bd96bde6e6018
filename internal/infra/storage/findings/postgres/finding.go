package postgres

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/internal/infra/storage"
)

var _ findings.FindingRepository = (*findingStore)(nil)

// findingStore implements findings.FindingRepository using PostgreSQL as the
// backing store. Reconciliation commits serialize per repository on a
// transaction-scoped advisory lock.
type findingStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewFindingStore creates a PostgreSQL-backed finding repository with tracing.
func NewFindingStore(pool *pgxpool.Pool, tracer trace.Tracer) *findingStore {
	return &findingStore{db: pool, tracer: tracer}
}

// GetTracked returns all of the repository's findings.
func (r *findingStore) GetTracked(ctx context.Context, repositoryID uuid.UUID) ([]*findings.Finding, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("repository_id", repositoryID.String()))

	var out []*findings.Finding
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_tracked_findings", dbAttrs, func(ctx context.Context) error {
		var err error
		out, err = queryFindings(ctx, r.db, selectFinding+` WHERE repository_id = $1`,
			pgtype.UUID{Bytes: repositoryID, Valid: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryFindings(ctx context.Context, q querier, sql string, args ...any) ([]*findings.Finding, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings error: %w", err)
	}
	defer rows.Close()

	var out []*findings.Finding
	for rows.Next() {
		f, err := scanFindingRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CommitReconciliation runs one pass atomically. The transaction takes the
// repository's advisory lock up front and only then reads the tracked
// findings, so the set handed to build is the set the commit applies to.
// Losing the lock race fails with ErrReconciliationConflict so the caller
// can retry against fresh state, and a scan older than the last reconciled
// one fails with ErrStaleScan and changes nothing.
func (r *findingStore) CommitReconciliation(ctx context.Context, scan *findings.Scan, build findings.ReconcileFunc) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scan_id", scan.ID().String()),
		attribute.String("repository_id", scan.RepositoryID().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.commit_reconciliation", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		var locked bool
		err = tx.QueryRow(ctx,
			`SELECT pg_try_advisory_xact_lock(hashtextextended($1::text, 0))`,
			scan.RepositoryID().String(),
		).Scan(&locked)
		if err != nil {
			return fmt.Errorf("acquiring reconciliation lock: %w", err)
		}
		if !locked {
			return findings.ErrReconciliationConflict
		}

		var lastCreatedAt pgtype.Timestamptz
		err = tx.QueryRow(ctx,
			`SELECT last_scan_created_at FROM repository_reconciliation WHERE repository_id = $1`,
			pgtype.UUID{Bytes: scan.RepositoryID(), Valid: true},
		).Scan(&lastCreatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reading last reconciled scan: %w", err)
		}
		if lastCreatedAt.Valid && lastCreatedAt.Time.After(scan.CreatedAt()) {
			return findings.ErrStaleScan
		}

		tracked, err := queryFindings(ctx, tx, selectFinding+` WHERE repository_id = $1`,
			pgtype.UUID{Bytes: scan.RepositoryID(), Valid: true})
		if err != nil {
			return fmt.Errorf("loading tracked findings: %w", err)
		}

		commit, err := build(tracked)
		if err != nil {
			return err
		}

		for _, f := range commit.Creates {
			if _, err := tx.Exec(ctx, insertFindingSQL, findingArgs(f)...); err != nil {
				return fmt.Errorf("inserting finding %s: %w", f.ID(), err)
			}
		}
		for _, f := range commit.Updates {
			tag, err := tx.Exec(ctx, updateFindingSQL, updateFindingArgs(f)...)
			if err != nil {
				return fmt.Errorf("updating finding %s: %w", f.ID(), err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("updating finding %s: %w", f.ID(), findings.ErrFindingNotFound)
			}
		}

		if _, err := tx.Exec(ctx, updateScanSQL, updateScanArgs(commit.Scan)...); err != nil {
			return fmt.Errorf("persisting scan state: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO repository_reconciliation (repository_id, last_scan_id, last_scan_created_at, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (repository_id) DO UPDATE SET
				last_scan_id = EXCLUDED.last_scan_id,
				last_scan_created_at = EXCLUDED.last_scan_created_at,
				updated_at = now()`,
			pgtype.UUID{Bytes: scan.RepositoryID(), Valid: true},
			pgtype.UUID{Bytes: scan.ID(), Valid: true},
			pgtype.Timestamptz{Time: scan.CreatedAt(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("recording reconciled scan: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// GetByID loads one finding.
func (r *findingStore) GetByID(ctx context.Context, id uuid.UUID) (*findings.Finding, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("finding_id", id.String()))

	var f *findings.Finding
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_finding", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, selectFinding+` WHERE id = $1`, pgtype.UUID{Bytes: id, Valid: true})
		var err error
		f, err = scanFindingRow(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Update persists changes made outside reconciliation.
func (r *findingStore) Update(ctx context.Context, f *findings.Finding) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("finding_id", f.ID().String()),
		attribute.String("status", string(f.Status())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_finding", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, updateFindingSQL, updateFindingArgs(f)...)
		if err != nil {
			return fmt.Errorf("update finding error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return findings.ErrFindingNotFound
		}
		return nil
	})
}

// List returns a filtered, sorted, paginated page of findings.
func (r *findingStore) List(ctx context.Context, filter findings.FindingFilter) (findings.FindingPage, error) {
	var page findings.FindingPage
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_findings", defaultDBAttributes, func(ctx context.Context) error {
		where, args := buildFilter(filter)

		countQuery := `SELECT count(*) FROM findings` + where
		if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count findings error: %w", err)
		}

		pageNum, pageSize := filter.Page, filter.PageSize
		if pageNum < 1 {
			pageNum = 1
		}
		if pageSize < 1 {
			pageSize = 50
		}
		query := selectFinding + where + orderClause(filter) +
			fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (pageNum-1)*pageSize)

		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list findings error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanFindingRow(rows)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, f)
		}
		return rows.Err()
	})
	if err != nil {
		return findings.FindingPage{}, err
	}
	return page, nil
}

func buildFilter(filter findings.FindingFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.RepositoryID != nil {
		add("repository_id = $%d", pgtype.UUID{Bytes: *filter.RepositoryID, Valid: true})
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.SecretType != "" {
		add("secret_type = $%d", filter.SecretType)
	}
	if filter.PathSearch != "" {
		add("file_path ILIKE $%d", "%"+filter.PathSearch+"%")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// orderClause maps the filter's sort key to a whitelisted ORDER BY. Severity
// sorts by urgency, not alphabetically.
func orderClause(filter findings.FindingFilter) string {
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	switch filter.SortBy {
	case "severity":
		return ` ORDER BY array_position(ARRAY['critical','high','medium','low','info'], severity::text) ` + dir + `, created_at DESC`
	case "file_path":
		return ` ORDER BY file_path ` + dir + `, line_number ` + dir
	case "updated_at":
		return ` ORDER BY updated_at ` + dir
	default:
		return ` ORDER BY created_at ` + dir
	}
}

const selectFinding = `
	SELECT id, repository_id, first_seen_scan_id, last_seen_scan_id,
		file_path, line_number, fingerprint,
		secret_type, rule_id, entropy,
		commit_sha, commit_author, commit_date,
		severity, status,
		resolved_at, resolved_by, resolution_note,
		created_at, updated_at
	FROM findings`

const insertFindingSQL = `
	INSERT INTO findings (
		id, repository_id, first_seen_scan_id, last_seen_scan_id,
		file_path, line_number, fingerprint,
		secret_type, rule_id, entropy,
		commit_sha, commit_author, commit_date,
		severity, status,
		resolved_at, resolved_by, resolution_note,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)`

const updateFindingSQL = `
	UPDATE findings SET
		last_seen_scan_id = $2,
		severity = $3,
		status = $4,
		resolved_at = $5,
		resolved_by = $6,
		resolution_note = $7,
		updated_at = $8
	WHERE id = $1`

func findingArgs(f *findings.Finding) []any {
	var resolvedAt pgtype.Timestamptz
	if ts, ok := f.ResolvedAt(); ok {
		resolvedAt = pgtype.Timestamptz{Time: ts, Valid: true}
	}
	var commitDate pgtype.Timestamptz
	if !f.CommitDate().IsZero() {
		commitDate = pgtype.Timestamptz{Time: f.CommitDate(), Valid: true}
	}

	return []any{
		pgtype.UUID{Bytes: f.ID(), Valid: true},
		pgtype.UUID{Bytes: f.RepositoryID(), Valid: true},
		pgtype.UUID{Bytes: f.FirstSeenScanID(), Valid: true},
		pgtype.UUID{Bytes: f.LastSeenScanID(), Valid: true},
		f.FilePath(),
		f.LineNumber(),
		string(f.Fingerprint()),
		f.SecretType(),
		f.RuleID(),
		f.Entropy(),
		f.CommitSHA(),
		f.CommitAuthor(),
		commitDate,
		string(f.Severity()),
		string(f.Status()),
		resolvedAt,
		f.ResolvedBy(),
		f.ResolutionNote(),
		pgtype.Timestamptz{Time: f.CreatedAt(), Valid: true},
		pgtype.Timestamptz{Time: f.UpdatedAt(), Valid: true},
	}
}

func updateFindingArgs(f *findings.Finding) []any {
	var resolvedAt pgtype.Timestamptz
	if ts, ok := f.ResolvedAt(); ok {
		resolvedAt = pgtype.Timestamptz{Time: ts, Valid: true}
	}

	return []any{
		pgtype.UUID{Bytes: f.ID(), Valid: true},
		pgtype.UUID{Bytes: f.LastSeenScanID(), Valid: true},
		string(f.Severity()),
		string(f.Status()),
		resolvedAt,
		f.ResolvedBy(),
		f.ResolutionNote(),
		pgtype.Timestamptz{Time: f.UpdatedAt(), Valid: true},
	}
}

func scanFindingRow(row rowScanner) (*findings.Finding, error) {
	var (
		id, repositoryID           pgtype.UUID
		firstSeenScan, lastSeen    pgtype.UUID
		filePath                   string
		lineNumber                 int
		fingerprint                string
		secretType, ruleID         string
		entropy                    float64
		commitSHA, commitAuthor    string
		commitDate                 pgtype.Timestamptz
		severity, status           string
		resolvedAt                 pgtype.Timestamptz
		resolvedBy, resolutionNote string
		createdAt, updatedAt       pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &repositoryID, &firstSeenScan, &lastSeen,
		&filePath, &lineNumber, &fingerprint,
		&secretType, &ruleID, &entropy,
		&commitSHA, &commitAuthor, &commitDate,
		&severity, &status,
		&resolvedAt, &resolvedBy, &resolutionNote,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, findings.ErrFindingNotFound
		}
		return nil, fmt.Errorf("finding row error: %w", err)
	}

	return findings.ReconstructFinding(
		uuid.UUID(id.Bytes), uuid.UUID(repositoryID.Bytes),
		uuid.UUID(firstSeenScan.Bytes), uuid.UUID(lastSeen.Bytes),
		filePath,
		lineNumber,
		findings.Fingerprint(fingerprint),
		secretType, ruleID,
		entropy,
		commitSHA, commitAuthor,
		commitDate.Time,
		findings.Severity(severity),
		findings.Status(status),
		timestamptzPtr(resolvedAt),
		resolvedBy, resolutionNote,
		createdAt.Time, updatedAt.Time,
	), nil
}

// ListRelated returns findings that share the repository, secret type, and
// file or directory of f, created at or after since, newest first. f itself
// is excluded.
func (r *findingStore) ListRelated(ctx context.Context, f *findings.Finding, since time.Time) ([]*findings.Finding, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("finding_id", f.ID().String()))

	// Findings in the same directory count as related; a bare filename has
	// no directory, so only same-file matches remain.
	dirPattern := f.FilePath()
	if dir := path.Dir(f.FilePath()); dir != "." {
		dirPattern = dir + "/%"
	}

	var out []*findings.Finding
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_related_findings", dbAttrs, func(ctx context.Context) error {
		var err error
		out, err = queryFindings(ctx, r.db, selectFinding+`
			WHERE id <> $1
				AND repository_id = $2
				AND secret_type = $3
				AND (file_path = $4 OR file_path LIKE $5)
				AND created_at >= $6
			ORDER BY created_at DESC`,
			pgtype.UUID{Bytes: f.ID(), Valid: true},
			pgtype.UUID{Bytes: f.RepositoryID(), Valid: true},
			f.SecretType(),
			f.FilePath(),
			dirPattern,
			pgtype.Timestamptz{Time: since, Valid: true},
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats aggregates finding counts, optionally for one repository. The
// per-repository breakdown is only computed for global aggregations and
// limited to the ten largest repositories.
func (r *findingStore) Stats(ctx context.Context, q findings.StatsQuery) (findings.FindingStats, error) {
	stats := findings.FindingStats{
		ByStatus:     make(map[findings.Status]int),
		BySeverity:   make(map[findings.Severity]int),
		BySecretType: make(map[string]int),
	}

	var repo pgtype.UUID
	if q.RepositoryID != nil {
		repo = pgtype.UUID{Bytes: *q.RepositoryID, Valid: true}
	}
	cutoff := pgtype.Timestamptz{Time: q.WindowStart, Valid: true}

	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.finding_stats", defaultDBAttributes, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT status, severity, secret_type, count(*)
			FROM findings
			WHERE ($1::uuid IS NULL OR repository_id = $1)
			GROUP BY status, severity, secret_type`, repo)
		if err != nil {
			return fmt.Errorf("stats breakdown query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var status, severity, secretType string
			var n int
			if err := rows.Scan(&status, &severity, &secretType, &n); err != nil {
				return fmt.Errorf("stats breakdown row error: %w", err)
			}
			stats.Total += n
			stats.ByStatus[findings.Status(status)] += n
			stats.BySeverity[findings.Severity(severity)] += n
			stats.BySecretType[secretType] += n
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if q.RepositoryID == nil {
			stats.ByRepository = make(map[uuid.UUID]int)
			repoRows, err := r.db.Query(ctx, `
				SELECT repository_id, count(*)
				FROM findings
				GROUP BY repository_id
				ORDER BY count(*) DESC
				LIMIT 10`)
			if err != nil {
				return fmt.Errorf("stats repository query error: %w", err)
			}
			defer repoRows.Close()

			for repoRows.Next() {
				var id pgtype.UUID
				var n int
				if err := repoRows.Scan(&id, &n); err != nil {
					return fmt.Errorf("stats repository row error: %w", err)
				}
				stats.ByRepository[uuid.UUID(id.Bytes)] = n
			}
			if err := repoRows.Err(); err != nil {
				return err
			}
		}

		err = r.db.QueryRow(ctx, `
			SELECT count(*) FROM findings
			WHERE ($1::uuid IS NULL OR repository_id = $1) AND created_at >= $2`,
			repo, cutoff,
		).Scan(&stats.NewInWindow)
		if err != nil {
			return fmt.Errorf("stats new-in-window query error: %w", err)
		}

		err = r.db.QueryRow(ctx, `
			SELECT count(*) FROM findings
			WHERE ($1::uuid IS NULL OR repository_id = $1)
				AND status = 'resolved' AND resolved_at >= $2`,
			repo, cutoff,
		).Scan(&stats.ResolvedInWindow)
		if err != nil {
			return fmt.Errorf("stats resolved-in-window query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return findings.FindingStats{}, err
	}
	return stats, nil
}
