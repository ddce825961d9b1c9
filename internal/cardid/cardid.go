package cardid

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans question text before hashing: lowercased, trimmed,
// with line endings normalized. Two questions that differ only in case
// or surrounding whitespace derive the same id.
func Normalize(question string) string {
	q := strings.ToLower(question)
	q = strings.TrimSpace(q)
	q = strings.ReplaceAll(q, "\r\n", "\n")
	return q
}

// FromQuestion derives a stable card id from question text: the SHA-256
// of the normalized question as a hex string. Used for synced cards that
// arrive without an explicit id, so the same question maps to the same
// card across syncs.
func FromQuestion(question string) string {
	normalized := Normalize(question)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
