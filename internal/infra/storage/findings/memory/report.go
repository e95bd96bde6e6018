package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
)

// ReportStore is an in-memory report repository keyed by scan ID.
type ReportStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*findings.ScanReport
}

// NewReportStore creates an empty in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[uuid.UUID]*findings.ScanReport)}
}

// Upsert overwrites any existing report for the same scan.
func (s *ReportStore) Upsert(ctx context.Context, r *findings.ScanReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.reports[r.ScanID] = &cp
	return nil
}

// GetByScanID retrieves the report for a scan.
func (s *ReportStore) GetByScanID(ctx context.Context, scanID uuid.UUID) (*findings.ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.reports[scanID]
	if !exists {
		return nil, findings.ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}
