package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashEmail returns the hex SHA-256 of an email address. The address is
// hashed exactly as stored — no trimming or case folding — so lookups match
// the store's case-sensitive semantics. Used as the lookup key in the Scylla
// store and as the identity field in audit events.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
