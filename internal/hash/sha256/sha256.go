// Package sha256 provides the SHA-256 content fingerprint.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements monitor.Hasher using SHA-256 over the UTF-8 bytes of the text.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Fingerprint returns the lowercase hex digest of text.
func (h *Hasher) Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
