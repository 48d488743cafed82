package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short, non-reversible identifier for a token so logs
// and audit events can correlate requests without leaking credentials.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
