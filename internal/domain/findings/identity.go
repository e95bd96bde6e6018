package findings

import (
	"fmt"

	"github.com/google/uuid"
)

// IdentityKey is the composite key that recognizes "the same secret
// occurrence" across scans. Line numbers participate deliberately: a finding
// that shifts lines due to unrelated edits resolves and recreates rather
// than being tracked through a diff. Matching on fingerprint alone would
// conflate identical secrets in different locations.
type IdentityKey struct {
	RepositoryID uuid.UUID
	FilePath     string
	LineNumber   int
	Fingerprint  Fingerprint
}

// String renders the key in a stable form usable as a map key or log field.
// The fingerprint is already irreversible, so the rendering is privacy-safe.
func (k IdentityKey) String() string {
	return fmt.Sprintf("%s:%s:%d:%s", k.RepositoryID, k.FilePath, k.LineNumber, k.Fingerprint)
}
