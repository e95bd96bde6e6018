package findings

import (
	"fmt"
	"time"
)

// RawMatch is one occurrence reported by the external scanning engine.
// Secret holds the matched text and exists only in memory for the duration
// of one scan's processing; it is never persisted, logged, or transmitted.
type RawMatch struct {
	FilePath     string
	LineNumber   int
	StartColumn  int
	EndColumn    int
	Secret       string
	RuleID       string
	Entropy      float64
	CommitSHA    string
	CommitAuthor string
	CommitDate   time.Time
}

// Validate rejects malformed matches. A match without a file path or matched
// text can never become a finding.
func (m RawMatch) Validate() error {
	if m.FilePath == "" {
		return fmt.Errorf("%w: missing file path", ErrInvalidMatch)
	}
	if m.Secret == "" {
		return fmt.Errorf("%w: missing matched text", ErrInvalidMatch)
	}
	if m.LineNumber <= 0 {
		return fmt.Errorf("%w: line number must be positive", ErrInvalidMatch)
	}
	return nil
}
