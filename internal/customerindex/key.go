package customerindex

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizeEmail trims and lower-cases an address before hashing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// KeyFor derives the one-way customer key for an email address.
func KeyFor(email string) string {
	sum := blake2b.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}
