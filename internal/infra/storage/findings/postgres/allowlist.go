package postgres

import (
	"context"
	"errors"
	"fmt"
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

var _ findings.AllowlistRepository = (*allowlistStore)(nil)

// allowlistStore implements findings.AllowlistRepository using PostgreSQL as
// the backing store.
type allowlistStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewAllowlistStore creates a PostgreSQL-backed allowlist repository with
// tracing.
func NewAllowlistStore(pool *pgxpool.Pool, tracer trace.Tracer) *allowlistStore {
	return &allowlistStore{db: pool, tracer: tracer}
}

// GetEffective returns the active entries applying to the repository: its
// own entries plus global ones, oldest first so evaluation order is stable.
func (r *allowlistStore) GetEffective(ctx context.Context, repositoryID uuid.UUID) ([]*findings.AllowlistEntry, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("repository_id", repositoryID.String()))

	var out []*findings.AllowlistEntry
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_effective_allowlist", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, repository_id, kind, scope, pattern, reason, active,
				times_matched, last_matched_at, created_at
			FROM allowlist_entries
			WHERE active AND (scope = 'global' OR repository_id = $1)
			ORDER BY created_at`,
			pgtype.UUID{Bytes: repositoryID, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("query allowlist error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanAllowlistRow(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create persists a new entry.
func (r *allowlistStore) Create(ctx context.Context, e *findings.AllowlistEntry) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entry_id", e.ID().String()),
		attribute.String("kind", string(e.Kind())),
		attribute.String("scope", string(e.Scope())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_allowlist_entry", dbAttrs, func(ctx context.Context) error {
		var repoID pgtype.UUID
		if rid := e.RepositoryID(); rid != nil {
			repoID = pgtype.UUID{Bytes: *rid, Valid: true}
		}

		_, err := r.db.Exec(ctx, `
			INSERT INTO allowlist_entries (
				id, repository_id, kind, scope, pattern, reason, active, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			pgtype.UUID{Bytes: e.ID(), Valid: true},
			repoID,
			string(e.Kind()),
			string(e.Scope()),
			e.Pattern(),
			e.Reason(),
			e.Active(),
			pgtype.Timestamptz{Time: e.CreatedAt(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("create allowlist entry error: %w", err)
		}
		return nil
	})
}

// RecordMatches credits entries for suppressions observed during a scan.
func (r *allowlistStore) RecordMatches(ctx context.Context, entryIDs []uuid.UUID, at time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}
	dbAttrs := append(defaultDBAttributes, attribute.Int("entry_count", len(entryIDs)))

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.record_allowlist_matches", dbAttrs, func(ctx context.Context) error {
		ids := make([]pgtype.UUID, len(entryIDs))
		for i, id := range entryIDs {
			ids[i] = pgtype.UUID{Bytes: id, Valid: true}
		}
		_, err := r.db.Exec(ctx, `
			UPDATE allowlist_entries SET
				times_matched = times_matched + 1,
				last_matched_at = $2
			WHERE id = ANY($1)`,
			ids,
			pgtype.Timestamptz{Time: at, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("record allowlist matches error: %w", err)
		}
		return nil
	})
}

// Deactivate turns an entry off without deleting it.
func (r *allowlistStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("entry_id", id.String()))

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.deactivate_allowlist_entry", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx,
			`UPDATE allowlist_entries SET active = FALSE WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("deactivate allowlist entry error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return findings.ErrAllowlistEntryNotFound
		}
		return nil
	})
}

func scanAllowlistRow(row rowScanner) (*findings.AllowlistEntry, error) {
	var (
		id            pgtype.UUID
		repositoryID  pgtype.UUID
		kind, scope   string
		pattern       string
		reason        string
		active        bool
		timesMatched  int64
		lastMatchedAt pgtype.Timestamptz
		createdAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &repositoryID, &kind, &scope, &pattern, &reason, &active,
		&timesMatched, &lastMatchedAt, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, findings.ErrAllowlistEntryNotFound
		}
		return nil, fmt.Errorf("allowlist row error: %w", err)
	}

	var repoID *uuid.UUID
	if repositoryID.Valid {
		rid := uuid.UUID(repositoryID.Bytes)
		repoID = &rid
	}

	return findings.ReconstructAllowlistEntry(
		uuid.UUID(id.Bytes),
		repoID,
		findings.AllowlistKind(kind),
		findings.AllowlistScope(scope),
		pattern, reason,
		active,
		timesMatched,
		timestamptzPtr(lastMatchedAt),
		createdAt.Time,
	), nil
}
