// Package security implements the letter security gate: hashed
// quiz/date answers compared in constant time at validation.
package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// NormalizeAnswer canonicalizes a submitted answer before hashing:
// lowercased, trimmed, inner whitespace runs collapsed to single spaces.
func NormalizeAnswer(answer string) string {
	return strings.Join(strings.Fields(strings.ToLower(answer)), " ")
}

// HashAnswer returns the SHA-256 hex digest of the normalized answer
func HashAnswer(answer string) string {
	sum := sha256.Sum256([]byte(NormalizeAnswer(answer)))
	return hex.EncodeToString(sum[:])
}

// VerifyAnswer reports whether the submitted answer matches the stored
// digest. The comparison is constant-time so response timing leaks
// nothing about how close a guess is.
func VerifyAnswer(storedHash, submitted string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashAnswer(submitted)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}
