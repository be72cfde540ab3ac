package store

import (
	"encoding/base64"
	"fmt"
	"strings"

	digestpkg "github.com/opencontainers/go-digest"
)

// Integrity is the (algorithm, digest) tuple identifying a committed
// blob, serialized as "<algorithm>-<base64url-digest>".
type Integrity struct {
	Algorithm Algorithm
	Digest    []byte
}

// String encodes the Integrity in its canonical on-disk/wire form.
func (i Integrity) String() string {
	return fmt.Sprintf("%s-%s", i.Algorithm, base64.RawURLEncoding.EncodeToString(i.Digest))
}

// ParseIntegrity parses the canonical Integrity string form.
func ParseIntegrity(s string) (Integrity, error) {
	idx := strings.IndexByte(s, '-')
	if idx < 0 {
		return Integrity{}, &CorruptedIntegrityError{Value: s, Reason: "missing algorithm separator"}
	}
	alg := Algorithm(s[:idx])
	raw, err := base64.RawURLEncoding.DecodeString(s[idx+1:])
	if err != nil {
		return Integrity{}, &CorruptedIntegrityError{Value: s, Reason: err.Error()}
	}
	return Integrity{Algorithm: alg, Digest: raw}, nil
}

// CorruptedIntegrityError is returned by ParseIntegrity for a malformed
// Integrity string.
type CorruptedIntegrityError struct {
	Value  string
	Reason string
}

func (e *CorruptedIntegrityError) Error() string {
	return fmt.Sprintf("store: corrupted integrity value %q: %s", e.Value, e.Reason)
}

// FormatSHA256 renders a raw SHA-256 digest as the secondary cross-check
// string carried on every FileEntry: "sha256=<base64url-no-pad(digest)>".
func FormatSHA256(digest []byte) string {
	return "sha256=" + base64.RawURLEncoding.EncodeToString(digest)
}

// VerifySHA256 checks that raw hashes, under SHA-256, to the digest
// encoded in the "sha256=..." string produced by FormatSHA256. It uses
// opencontainers/go-digest's verifier, the same library the blob store
// uses to cross-check a committed blob's declared digest against its
// actual bytes.
func VerifySHA256(encoded string, raw []byte) (bool, error) {
	const prefix = "sha256="
	if !strings.HasPrefix(encoded, prefix) {
		return false, fmt.Errorf("store: %q is not a sha256= digest", encoded)
	}
	sum, err := base64.RawURLEncoding.DecodeString(encoded[len(prefix):])
	if err != nil {
		return false, err
	}
	d := digestpkg.NewDigestFromEncoded(digestpkg.SHA256, hexEncode(sum))
	verifier := d.Verifier()
	if _, err := verifier.Write(raw); err != nil {
		return false, err
	}
	return verifier.Verified(), nil
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
