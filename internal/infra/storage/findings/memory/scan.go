// Package memory provides in-memory implementations of the findings
// persistence ports for testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// ScanStore is an in-memory scan repository. It also tracks each
// repository's last reconciled scan, the ordering FindingStore consults for
// staleness checks.
type ScanStore struct {
	mu             sync.Mutex
	scans          map[uuid.UUID]*findings.Scan
	lastReconciled map[uuid.UUID]uuid.UUID // repository ID -> scan ID
}

// NewScanStore creates an empty in-memory scan store.
func NewScanStore() *ScanStore {
	return &ScanStore{
		scans:          make(map[uuid.UUID]*findings.Scan),
		lastReconciled: make(map[uuid.UUID]uuid.UUID),
	}
}

// Create persists a new scan. Re-submitting an existing scan ID fails with
// ErrDuplicateScan.
func (s *ScanStore) Create(ctx context.Context, scan *findings.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scans[scan.ID()]; exists {
		return findings.ErrDuplicateScan
	}
	s.scans[scan.ID()] = copyScan(scan)
	return nil
}

// GetByID retrieves a scan by ID.
func (s *ScanStore) GetByID(ctx context.Context, id uuid.UUID) (*findings.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan, exists := s.scans[id]
	if !exists {
		return nil, findings.ErrScanNotFound
	}
	return copyScan(scan), nil
}

// Update persists scan state changes.
func (s *ScanStore) Update(ctx context.Context, scan *findings.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scans[scan.ID()]; !exists {
		return findings.ErrScanNotFound
	}
	s.scans[scan.ID()] = copyScan(scan)
	return nil
}

// LastReconciled returns the most recently reconciled scan for a repository.
func (s *ScanStore) LastReconciled(ctx context.Context, repositoryID uuid.UUID) (*findings.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scanID, exists := s.lastReconciled[repositoryID]
	if !exists {
		return nil, findings.ErrScanNotFound
	}
	scan, exists := s.scans[scanID]
	if !exists {
		return nil, findings.ErrScanNotFound
	}
	return copyScan(scan), nil
}

// saveReconciled records a scan as the repository's latest reconciled scan
// and persists its state. Called by FindingStore while committing.
func (s *ScanStore) saveReconciled(scan *findings.Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scans[scan.ID()] = copyScan(scan)
	s.lastReconciled[scan.RepositoryID()] = scan.ID()
}

// lastReconciledCreatedAt reports the creation time of the repository's last
// reconciled scan, if any.
func (s *ScanStore) lastReconciledCreatedAt(repositoryID uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scanID, exists := s.lastReconciled[repositoryID]
	if !exists {
		return time.Time{}, false
	}
	scan, exists := s.scans[scanID]
	if !exists {
		return time.Time{}, false
	}
	return scan.CreatedAt(), true
}

func copyScan(scan *findings.Scan) *findings.Scan {
	var startedAt, completedAt *time.Time
	if ts, ok := scan.StartedAt(); ok {
		startedAt = &ts
	}
	if ts, ok := scan.CompletedAt(); ok {
		completedAt = &ts
	}
	totals := scan.Totals()
	if totals.BySeverity != nil {
		bySeverity := make(map[findings.Severity]int, len(totals.BySeverity))
		for k, v := range totals.BySeverity {
			bySeverity[k] = v
		}
		totals.BySeverity = bySeverity
	}
	return findings.ReconstructScan(
		scan.ID(), scan.RepositoryID(),
		scan.CommitSHA(), scan.Branch(),
		scan.Type(),
		scan.Status(),
		totals,
		scan.ErrorMessage(), scan.TriggeredBy(),
		scan.CreatedAt(),
		startedAt, completedAt,
	)
}
