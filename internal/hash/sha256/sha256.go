// Package sha256 derives stable product identities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements monitor.Hasher with a hex SHA-256 digest.
//
// A positive Length truncates the digest to that many hex characters.
type Hasher struct {
	Length int
}

// New returns a hasher emitting full 64-character digests.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.Length > 0 && h.Length < len(digest) {
		digest = digest[:h.Length]
	}
	return digest, nil
}
