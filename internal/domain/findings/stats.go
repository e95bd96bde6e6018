package findings

import (
	"time"

	"github.com/google/uuid"
)

// StatsQuery narrows a stats aggregation.
type StatsQuery struct {
	// RepositoryID limits the aggregation to one repository. Nil aggregates
	// across all repositories.
	RepositoryID *uuid.UUID

	// WindowStart is the cutoff for the trend counters.
	WindowStart time.Time
}

// FindingStats aggregates finding counts for dashboards and reporting. Every
// value derives from statuses, severities, and locations; secret material is
// never involved.
type FindingStats struct {
	Total        int
	ByStatus     map[Status]int
	BySeverity   map[Severity]int
	BySecretType map[string]int

	// ByRepository is keyed by repository ID and only populated for global
	// aggregations.
	ByRepository map[uuid.UUID]int

	// NewInWindow counts findings created at or after the window start;
	// ResolvedInWindow counts findings resolved in the same window.
	NewInWindow      int
	ResolvedInWindow int
}
