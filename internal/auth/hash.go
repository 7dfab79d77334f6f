package auth

import (
	"crypto/sha256"
	"fmt"
)

// Hash returns the SHA-256 digest of the password as a lowercase hex string.
// It is unsalted, so equal passwords always hash the same.
func Hash(password string) string {
	hashBytes := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", hashBytes)
}
