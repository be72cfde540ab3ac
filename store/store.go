// Package store implements the content store: a content-addressed blob
// store keyed by Integrity (algorithm, digest), atomic on commit, and
// backed by a pluggable store/driver.Driver. Commits use a
// temp-file-then-rename idiom, deduplicating on an exists check against
// an arbitrary pluggable Algorithm rather than a single fixed digest
// scheme.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"hash"
	"path"

	wheelcore "github.com/distribution/wheelcore"
	"github.com/distribution/wheelcore/store/driver"
	"github.com/distribution/wheelcore/wcontext"
)

// ModTimeSetter is implemented by drivers that can preserve a blob's
// original modification time. Optional: the Content Store degrades
// silently if the configured driver doesn't implement it.
type ModTimeSetter interface {
	SetModTime(ctx context.Context, path string, mtimeMs int64) error
}

// Store is a content-addressed blob store. The zero value is not usable;
// construct with New.
type Store struct {
	driver driver.Driver
}

// New constructs a Store backed by the given driver.
func New(d driver.Driver) *Store {
	return &Store{driver: d}
}

// blobPath returns the content-addressed path for an Integrity value,
// fanned out by algorithm the way blobstore.go fans out by digest
// algorithm and the first bytes of the hex digest.
func blobPath(i Integrity) string {
	hexDigest := hex.EncodeToString(i.Digest)
	if len(hexDigest) < 4 {
		return path.Join("/blobs", string(i.Algorithm), hexDigest)
	}
	return path.Join("/blobs", string(i.Algorithm), hexDigest[:2], hexDigest[2:4], hexDigest)
}

func uploadPath() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return path.Join("/_uploads", hex.EncodeToString(buf[:]))
}

// Writer is a sink for bytes destined for the Content Store, returned by
// OpenWriter. It tees every write through the configured algorithm's
// hash so Commit can derive the final Integrity without a second pass;
// callers may further wrap Writer in io.MultiWriter (e.g. the archive
// extractor's SHA-256 cross-check adapter) to compute additional digests
// over the identical byte stream at no extra I/O cost.
type Writer struct {
	store     *Store
	algorithm Algorithm
	hash      hash.Hash
	fw        driver.FileWriter
	tempPath  string
	mtimeMs   *int64
	done      bool
}

// OpenWriter returns a Writer for a new blob hashed under algorithm. If
// mtimeMs is non-nil and the configured driver supports it, the blob's
// modification time is set to it on commit.
func (s *Store) OpenWriter(ctx context.Context, algorithm Algorithm, mtimeMs *int64) (*Writer, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return nil, err
	}
	tempPath := uploadPath()
	fw, err := s.driver.Writer(ctx, tempPath, false)
	if err != nil {
		return nil, &wheelcore.CacheError{Path: tempPath, Detail: err.Error()}
	}
	return &Writer{store: s, algorithm: algorithm, hash: h, fw: fw, tempPath: tempPath, mtimeMs: mtimeMs}, nil
}

// Write implements io.Writer, hashing every byte written.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.fw.Write(p)
	if n > 0 {
		w.hash.Write(p[:n])
	}
	return n, err
}

// Cancel discards the writer's temporary data without committing it.
func (w *Writer) Cancel(ctx context.Context) error {
	if w.done {
		return nil
	}
	w.done = true
	return w.fw.Cancel(ctx)
}

// Commit flushes w and atomically promotes its bytes to their
// content-addressed location, returning the resulting Integrity.
// Idempotent: if a blob with the computed Integrity already exists, the
// duplicate write is discarded and the existing blob's Integrity is
// returned — no partial or duplicate blob is ever made visible, and a
// second commit of the same content is a no-op.
func (s *Store) Commit(ctx context.Context, w *Writer) (Integrity, error) {
	if w.done {
		return Integrity{}, &wheelcore.CacheError{Path: w.tempPath, Detail: "writer already finalized"}
	}
	w.done = true

	integrity := Integrity{Algorithm: w.algorithm, Digest: w.hash.Sum(nil)}
	destPath := blobPath(integrity)

	if exists, err := s.driver.Exists(ctx, destPath); err != nil {
		w.fw.Cancel(ctx)
		return Integrity{}, &wheelcore.CacheError{Path: destPath, Detail: err.Error()}
	} else if exists {
		// Duplicate content: the upload is a harmless dedupable orphan
		// discarded in place, matching blobstore.go's put() which skips
		// PutContent entirely when the digest already resolves.
		if err := w.fw.Cancel(ctx); err != nil {
			return Integrity{}, &wheelcore.CacheError{Path: w.tempPath, Detail: err.Error()}
		}
		wcontext.GetLogger(ctx).Debugf("store: commit of %s deduplicated against existing blob", integrity)
		return integrity, nil
	}

	if err := w.fw.Commit(ctx); err != nil {
		return Integrity{}, &wheelcore.CacheError{Path: w.tempPath, Detail: err.Error()}
	}
	if err := s.driver.Move(ctx, w.tempPath, destPath); err != nil {
		return Integrity{}, &wheelcore.CacheError{Path: destPath, Detail: err.Error()}
	}
	if w.mtimeMs != nil {
		if setter, ok := s.driver.(ModTimeSetter); ok {
			_ = setter.SetModTime(ctx, destPath, *w.mtimeMs)
		}
	}
	return integrity, nil
}

// Get reads back a committed blob by Integrity.
func (s *Store) Get(ctx context.Context, i Integrity) ([]byte, error) {
	content, err := s.driver.GetContent(ctx, blobPath(i))
	if err != nil {
		return nil, &wheelcore.CacheError{Path: blobPath(i), Detail: err.Error()}
	}
	return content, nil
}

// Has reports whether a blob with the given Integrity has been committed.
func (s *Store) Has(ctx context.Context, i Integrity) (bool, error) {
	return s.driver.Exists(ctx, blobPath(i))
}
