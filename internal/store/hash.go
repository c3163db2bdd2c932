package store

import (
	"crypto/sha256"
	"fmt"
)

// HashSource returns the hex SHA-256 of a module's source text. A stored
// summary is only reused when the hash of the current source matches.
func HashSource(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}
