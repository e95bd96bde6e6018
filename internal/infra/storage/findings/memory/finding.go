package memory

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// severityRank orders severities for sorting, most urgent first.
var severityRank = map[findings.Severity]int{
	findings.SeverityCritical: 0,
	findings.SeverityHigh:     1,
	findings.SeverityMedium:   2,
	findings.SeverityLow:      3,
	findings.SeverityInfo:     4,
}

// FindingStore is an in-memory finding repository. The store mutex is held
// across a commit's read, diff, and apply, standing in for the
// per-repository advisory lock the postgres implementation takes.
type FindingStore struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*findings.Finding
	scanStore *ScanStore
}

// NewFindingStore creates an empty in-memory finding store. The scan store
// supplies last-reconciled ordering for staleness checks.
func NewFindingStore(scanStore *ScanStore) *FindingStore {
	return &FindingStore{
		byID:      make(map[uuid.UUID]*findings.Finding),
		scanStore: scanStore,
	}
}

// GetTracked returns all of the repository's findings for one
// reconciliation pass.
func (s *FindingStore) GetTracked(ctx context.Context, repositoryID uuid.UUID) ([]*findings.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*findings.Finding
	for _, f := range s.byID {
		if f.RepositoryID() != repositoryID {
			continue
		}
		out = append(out, copyFinding(f))
	}
	return out, nil
}

// CommitReconciliation runs one pass atomically: the tracked findings are
// read and handed to build with the mutex held, so the set it sees is the
// set the commit applies to. A scan older than the repository's last
// reconciled scan fails with ErrStaleScan and build never runs.
func (s *FindingStore) CommitReconciliation(ctx context.Context, scan *findings.Scan, build findings.ReconcileFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.scanStore.lastReconciledCreatedAt(scan.RepositoryID()); ok && last.After(scan.CreatedAt()) {
		return findings.ErrStaleScan
	}

	var tracked []*findings.Finding
	for _, f := range s.byID {
		if f.RepositoryID() == scan.RepositoryID() {
			tracked = append(tracked, copyFinding(f))
		}
	}

	commit, err := build(tracked)
	if err != nil {
		return err
	}

	for _, f := range commit.Creates {
		s.byID[f.ID()] = copyFinding(f)
	}
	for _, f := range commit.Updates {
		s.byID[f.ID()] = copyFinding(f)
	}
	s.scanStore.saveReconciled(commit.Scan)
	return nil
}

// GetByID loads one finding.
func (s *FindingStore) GetByID(ctx context.Context, id uuid.UUID) (*findings.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.byID[id]
	if !exists {
		return nil, findings.ErrFindingNotFound
	}
	return copyFinding(f), nil
}

// Update persists changes made outside reconciliation.
func (s *FindingStore) Update(ctx context.Context, f *findings.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[f.ID()]; !exists {
		return findings.ErrFindingNotFound
	}
	s.byID[f.ID()] = copyFinding(f)
	return nil
}

// List returns a filtered, sorted, paginated page of findings.
func (s *FindingStore) List(ctx context.Context, filter findings.FindingFilter) (findings.FindingPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*findings.Finding
	for _, f := range s.byID {
		if !matchesFilter(f, filter) {
			continue
		}
		matched = append(matched, copyFinding(f))
	}

	sortFindings(matched, filter.SortBy, filter.SortDesc)

	total := len(matched)
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	start := (page - 1) * pageSize
	if start >= total {
		return findings.FindingPage{Items: nil, Total: total}, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return findings.FindingPage{Items: matched[start:end], Total: total}, nil
}

// ListRelated returns findings sharing the repository, secret type, and file
// or directory of f, created at or after since, newest first.
func (s *FindingStore) ListRelated(ctx context.Context, f *findings.Finding, since time.Time) ([]*findings.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := path.Dir(f.FilePath())

	var out []*findings.Finding
	for _, other := range s.byID {
		if other.ID() == f.ID() || other.RepositoryID() != f.RepositoryID() || other.SecretType() != f.SecretType() {
			continue
		}
		sameFile := other.FilePath() == f.FilePath()
		sameDir := dir != "." && strings.HasPrefix(other.FilePath(), dir+"/")
		if !sameFile && !sameDir {
			continue
		}
		if other.CreatedAt().Before(since) {
			continue
		}
		out = append(out, copyFinding(other))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	return out, nil
}

// Stats aggregates finding counts, optionally for one repository. The
// per-repository breakdown is only populated for global aggregations.
func (s *FindingStore) Stats(ctx context.Context, q findings.StatsQuery) (findings.FindingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := findings.FindingStats{
		ByStatus:     make(map[findings.Status]int),
		BySeverity:   make(map[findings.Severity]int),
		BySecretType: make(map[string]int),
	}
	if q.RepositoryID == nil {
		stats.ByRepository = make(map[uuid.UUID]int)
	}

	for _, f := range s.byID {
		if q.RepositoryID != nil && f.RepositoryID() != *q.RepositoryID {
			continue
		}
		stats.Total++
		stats.ByStatus[f.Status()]++
		stats.BySeverity[f.Severity()]++
		stats.BySecretType[f.SecretType()]++
		if stats.ByRepository != nil {
			stats.ByRepository[f.RepositoryID()]++
		}
		if !f.CreatedAt().Before(q.WindowStart) {
			stats.NewInWindow++
		}
		if ts, ok := f.ResolvedAt(); ok && f.Status() == findings.StatusResolved && !ts.Before(q.WindowStart) {
			stats.ResolvedInWindow++
		}
	}
	return stats, nil
}

func matchesFilter(f *findings.Finding, filter findings.FindingFilter) bool {
	if filter.RepositoryID != nil && f.RepositoryID() != *filter.RepositoryID {
		return false
	}
	if filter.Status != "" && f.Status() != filter.Status {
		return false
	}
	if filter.Severity != "" && f.Severity() != filter.Severity {
		return false
	}
	if filter.SecretType != "" && f.SecretType() != filter.SecretType {
		return false
	}
	if filter.PathSearch != "" && !strings.Contains(f.FilePath(), filter.PathSearch) {
		return false
	}
	return true
}

func sortFindings(fs []*findings.Finding, sortBy string, desc bool) {
	less := func(i, j int) bool { return fs[i].CreatedAt().Before(fs[j].CreatedAt()) }
	switch sortBy {
	case "severity":
		less = func(i, j int) bool { return severityRank[fs[i].Severity()] < severityRank[fs[j].Severity()] }
	case "file_path":
		less = func(i, j int) bool {
			if fs[i].FilePath() != fs[j].FilePath() {
				return fs[i].FilePath() < fs[j].FilePath()
			}
			return fs[i].LineNumber() < fs[j].LineNumber()
		}
	case "updated_at":
		less = func(i, j int) bool { return fs[i].UpdatedAt().Before(fs[j].UpdatedAt()) }
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(fs, less)
}

func copyFinding(f *findings.Finding) *findings.Finding {
	var resolvedAt *time.Time
	if ts, ok := f.ResolvedAt(); ok {
		resolvedAt = &ts
	}
	return findings.ReconstructFinding(
		f.ID(), f.RepositoryID(), f.FirstSeenScanID(), f.LastSeenScanID(),
		f.FilePath(),
		f.LineNumber(),
		f.Fingerprint(),
		f.SecretType(), f.RuleID(),
		f.Entropy(),
		f.CommitSHA(), f.CommitAuthor(),
		f.CommitDate(),
		f.Severity(),
		f.Status(),
		resolvedAt,
		f.ResolvedBy(), f.ResolutionNote(),
		f.CreatedAt(), f.UpdatedAt(),
	)
}
