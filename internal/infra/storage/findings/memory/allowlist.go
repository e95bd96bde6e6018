package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// AllowlistStore is an in-memory allowlist repository.
type AllowlistStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*findings.AllowlistEntry
}

// NewAllowlistStore creates an empty in-memory allowlist store.
func NewAllowlistStore() *AllowlistStore {
	return &AllowlistStore{entries: make(map[uuid.UUID]*findings.AllowlistEntry)}
}

// GetEffective returns the active entries applying to the repository: its
// own entries plus global ones, oldest first.
func (s *AllowlistStore) GetEffective(ctx context.Context, repositoryID uuid.UUID) ([]*findings.AllowlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*findings.AllowlistEntry
	for _, e := range s.entries {
		if !e.Active() {
			continue
		}
		if e.Scope() == findings.ScopeRepository {
			if e.RepositoryID() == nil || *e.RepositoryID() != repositoryID {
				continue
			}
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

// Create persists a new entry.
func (s *AllowlistStore) Create(ctx context.Context, e *findings.AllowlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.ID()] = copyEntry(e)
	return nil
}

// RecordMatches credits entries for suppressions observed during a scan.
// Unknown IDs are skipped; counters are advisory.
func (s *AllowlistStore) RecordMatches(ctx context.Context, entryIDs []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range entryIDs {
		if e, exists := s.entries[id]; exists {
			e.RecordMatch(at)
		}
	}
	return nil
}

// Deactivate turns an entry off without deleting it.
func (s *AllowlistStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[id]
	if !exists {
		return findings.ErrAllowlistEntryNotFound
	}
	e.Deactivate()
	return nil
}

// Get returns one entry by ID, primarily for tests.
func (s *AllowlistStore) Get(ctx context.Context, id uuid.UUID) (*findings.AllowlistEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[id]
	if !exists {
		return nil, false
	}
	return copyEntry(e), true
}

func copyEntry(e *findings.AllowlistEntry) *findings.AllowlistEntry {
	var lastMatched *time.Time
	if ts, ok := e.LastMatchedAt(); ok {
		lastMatched = &ts
	}
	return findings.ReconstructAllowlistEntry(
		e.ID(),
		e.RepositoryID(),
		e.Kind(),
		e.Scope(),
		e.Pattern(), e.Reason(),
		e.Active(),
		e.TimesMatched(),
		lastMatched,
		e.CreatedAt(),
	)
}
