package store_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/distribution/wheelcore/store"
	"github.com/distribution/wheelcore/store/driver/filesystem"
)

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filesystem.New(t.TempDir()))
}

func commit(t *testing.T, s *store.Store, alg store.Algorithm, content []byte) store.Integrity {
	t.Helper()
	w, err := s.OpenWriter(context.Background(), alg, nil)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	integrity, err := s.Commit(context.Background(), w)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return integrity
}

func TestCommitAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	content := []byte("hello wheelcore")

	integrity := commit(t, s, store.DefaultAlgorithm, content)

	got, err := s.Get(context.Background(), integrity)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Get returned %q, want %q", got, content)
	}

	ok, err := s.Has(context.Background(), integrity)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !ok {
		t.Fatal("Has reported false for a committed blob")
	}
}

func TestCommitIsIdempotentOnDuplicateContent(t *testing.T) {
	s := newTestStore(t)
	content := []byte("duplicate me")

	first := commit(t, s, store.DefaultAlgorithm, content)
	second := commit(t, s, store.DefaultAlgorithm, content)

	if first.String() != second.String() {
		t.Fatalf("committing identical content twice produced different integrities: %s vs %s", first, second)
	}
}

func TestIntegrityStringRoundTrip(t *testing.T) {
	s := newTestStore(t)
	integrity := commit(t, s, store.DefaultAlgorithm, []byte("round trip me"))

	parsed, err := store.ParseIntegrity(integrity.String())
	if err != nil {
		t.Fatalf("ParseIntegrity: %v", err)
	}
	if parsed.String() != integrity.String() {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, integrity)
	}
}

func TestParseIntegrityRejectsMalformedInput(t *testing.T) {
	if _, err := store.ParseIntegrity("nodigestseparator"); err == nil {
		t.Fatal("expected an error for input missing the algorithm separator")
	}
}

func TestDifferentAlgorithmsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	content := []byte("same bytes, different algorithm")

	xxh := commit(t, s, store.AlgXXH64, content)
	sha := commit(t, s, store.AlgSHA256, content)

	if xxh.String() == sha.String() {
		t.Fatal("distinct algorithms produced the same Integrity string")
	}
	for _, i := range []store.Integrity{xxh, sha} {
		ok, err := s.Has(context.Background(), i)
		if err != nil || !ok {
			t.Fatalf("Has(%s) = %v, %v; want true, nil", i, ok, err)
		}
	}
}

func TestVerifySHA256(t *testing.T) {
	raw := []byte("verify me")
	sum := store.FormatSHA256(sha256Sum(raw))

	ok, err := store.VerifySHA256(sum, raw)
	if err != nil {
		t.Fatalf("VerifySHA256: %v", err)
	}
	if !ok {
		t.Fatal("VerifySHA256 returned false for a matching digest")
	}

	ok, err = store.VerifySHA256(sum, []byte("tampered"))
	if err != nil {
		t.Fatalf("VerifySHA256: %v", err)
	}
	if ok {
		t.Fatal("VerifySHA256 returned true for tampered content")
	}
}
