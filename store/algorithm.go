package store

import (
	"hash"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Algorithm identifies a hash function usable as a Content Store key. The
// store can hold blobs hashed under several algorithms at once; the
// algorithm tag is part of the key, so two algorithms never collide on the
// same digest bytes.
type Algorithm string

const (
	// AlgXXH64 is the default algorithm: fast, 64-bit, non-cryptographic.
	AlgXXH64 Algorithm = "xxh64"
	// AlgSHA256 is the secondary cross-check digest recorded on every
	// FileEntry regardless of which algorithm the store itself uses.
	AlgSHA256 Algorithm = "sha256"
	// AlgBLAKE2b is a stronger optional digest, offered so two
	// non-default algorithms can be exercised side by side.
	AlgBLAKE2b Algorithm = "blake2b"
)

// DefaultAlgorithm is the algorithm the archive extractor passes to
// OpenWriter. OpenWriter does not substitute it for an empty Algorithm;
// an empty value is rejected as unknown.
const DefaultAlgorithm = AlgXXH64

// newHash constructs the hash.Hash for an algorithm. Returns an error for
// an unknown algorithm rather than panicking, since the algorithm may
// ultimately derive from caller-supplied configuration.
func newHash(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case AlgXXH64:
		return xxhash.New(), nil
	case AlgSHA256:
		return newSHA256(), nil
	case AlgBLAKE2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, &UnknownAlgorithmError{Algorithm: string(alg)}
	}
}

// UnknownAlgorithmError is returned by OpenWriter for an unrecognised
// Algorithm value.
type UnknownAlgorithmError struct {
	Algorithm string
}

func (e *UnknownAlgorithmError) Error() string {
	return "store: unknown algorithm " + e.Algorithm
}
