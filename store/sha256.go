package store

import (
	"crypto/sha256"
	"hash"
)

// newSHA256 isolates the one stdlib hash dependency behind the same
// constructor shape as the third-party algorithms in this package.
func newSHA256() hash.Hash {
	return sha256.New()
}
