package findings

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionEventType enumerates the finding transitions worth announcing.
type TransitionEventType string

const (
	EventFindingCreated     TransitionEventType = "finding.created"
	EventFindingResolved    TransitionEventType = "finding.resolved"
	EventFindingReactivated TransitionEventType = "finding.reactivated"
)

// TransitionEvent is the redacted notification emitted after a
// reconciliation pass commits. It carries the same privacy guarantees as
// FindingSummary: no secret material, ever.
type TransitionEvent struct {
	Type         TransitionEventType `json:"type"`
	FindingID    uuid.UUID           `json:"finding_id"`
	RepositoryID uuid.UUID           `json:"repository_id"`
	ScanID       uuid.UUID           `json:"scan_id"`
	FilePath     string              `json:"file_path"`
	LineNumber   int                 `json:"line_number"`
	SecretType   string              `json:"secret_type"`
	Severity     Severity            `json:"severity"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

// TransitionPublisher delivers transition events to notification channels.
// Publishing happens after commit and is fire-and-forget: a delivery failure
// never rolls back a reconciliation.
type TransitionPublisher interface {
	Publish(ctx context.Context, events []TransitionEvent) error
}
