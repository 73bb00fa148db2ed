// Package password wraps the salted adaptive hash used for credential
// verification.
package password

import "golang.org/x/crypto/bcrypt"

// Hasher creates and verifies bcrypt digests. The zero value uses the
// default cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given cost; values outside bcrypt's
// range fall back to the default cost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted one-way digest of plaintext. The salt is freshly
// randomized per call, so equal plaintexts produce distinct digests.
func (h *Hasher) Hash(plaintext string) (string, error) {
	cost := h.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext hashes to digest under the salt and cost
// embedded in the digest. Mismatches and malformed digests both report
// false; Verify never fails in any other way.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
