package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is the irreversible SHA-256 digest standing in for a secret
// value. Identical secrets always produce identical fingerprints, which is
// what makes cross-file and cross-scan deduplication possible without ever
// holding on to the secret itself.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// ComputeFingerprint derives the fingerprint for matched text. Pure and
// deterministic; callers must reject empty input before calling.
func ComputeFingerprint(secret string) Fingerprint {
	sum := sha256.Sum256([]byte(secret))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// NormalizeSecretType derives a stable secret-type label from a detection
// rule identifier, e.g. "AWS-Access-Token" becomes "aws_access_token".
func NormalizeSecretType(ruleID string) string {
	if ruleID == "" {
		return "unknown"
	}
	s := strings.ToLower(strings.TrimSpace(ruleID))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
