// Package archive implements the archive extractor: it streams a zip
// binary archive, records every file entry into a content store, and
// produces a deterministic manifest.Manifest.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"archive/zip"

	wheelcore "github.com/distribution/wheelcore"
	"github.com/distribution/wheelcore/manifest"
	"github.com/distribution/wheelcore/store"
)

// symlinkModeBit is the upper-mode-bits encoding (S_IFLNK, 0120000) that
// common zip archivers use to mark a regular-looking entry as a symlink
// whose body is the link target — the same convention
// original_source/.../cache/mod.rs's zip crate exposes via
// unix_mode()/unix_mode & S_IFLNK, and that Go's archive/zip keeps in the
// upper 16 bits of FileHeader.ExternalAttrs for archives created on a
// Unix host.
const symlinkModeBit = 0o120000

// Extract streams the zip archive read from r, committing every file
// entry into contentStore and returning the resulting Manifest.
//
// archive/zip requires random access (io.ReaderAt) to parse the central
// directory, so r is read fully into memory before handing it to
// zip.NewReader. At the scale of individual wheels/sdists, that is a
// reasonable trade: the extractor still makes exactly one pass over each
// entry's bytes and never seeks within an entry body.
func Extract(ctx context.Context, contentStore *store.Store, r io.Reader) (*manifest.Manifest, error) {
	useFastInflate()

	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, &wheelcore.IOError{Path: "<archive>", Detail: err.Error()}
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, &wheelcore.ZipError{Detail: err.Error()}
	}

	m := manifest.New()

	for _, f := range zr.File {
		name, err := normalizeEntryName(f.Name)
		if err != nil {
			return nil, err
		}

		if uint32(f.ExternalAttrs>>16)&0o170000 == symlinkModeBit {
			target, err := readEntryBody(f)
			if err != nil {
				return nil, &wheelcore.ZipError{Detail: err.Error()}
			}
			m.Links[name] = string(target)
			continue
		}

		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			m.Directories = append(m.Directories, name)
			continue
		}

		entry, err := commitEntry(ctx, contentStore, f, name)
		if err != nil {
			return nil, err
		}
		m.Files[name] = entry
	}

	return m, nil
}

// normalizeEntryName validates and normalizes a zip entry name, rejecting
// non-UTF-8 names and paths that escape the archive root.
func normalizeEntryName(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", &wheelcore.InvalidEntryError{Name: raw, Reason: "not valid UTF-8"}
	}
	normalized := strings.ReplaceAll(raw, "\\", "/")
	trimmed := strings.TrimSuffix(normalized, "/")
	if trimmed == "" {
		return "", &wheelcore.InvalidEntryError{Name: raw, Reason: "empty path"}
	}
	if path.IsAbs(trimmed) || strings.HasPrefix(trimmed, "/") {
		return "", &wheelcore.InvalidEntryError{Name: raw, Reason: "absolute path"}
	}
	clean := path.Clean(trimmed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &wheelcore.InvalidEntryError{Name: raw, Reason: "path escapes archive root"}
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", &wheelcore.InvalidEntryError{Name: raw, Reason: "path escapes archive root"}
		}
	}
	return trimmed, nil
}

func readEntryBody(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// commitEntry streams one file entry's bytes through the content
// store's default algorithm and a SHA-256 cross-check adapter in a
// single pass.
func commitEntry(ctx context.Context, contentStore *store.Store, f *zip.File, name string) (manifest.FileEntry, error) {
	rc, err := f.Open()
	if err != nil {
		return manifest.FileEntry{}, &wheelcore.ZipError{Detail: err.Error()}
	}
	defer rc.Close()

	var mtimeMs *int64
	if !f.Modified.IsZero() {
		ms := f.Modified.UnixMilli()
		mtimeMs = &ms
	}

	writer, err := contentStore.OpenWriter(ctx, store.DefaultAlgorithm, mtimeMs)
	if err != nil {
		return manifest.FileEntry{}, &wheelcore.CacheError{Path: name, Detail: err.Error()}
	}

	sha := sha256.New()
	tee := io.MultiWriter(writer, sha)

	if _, err := io.Copy(tee, rc); err != nil {
		writer.Cancel(ctx)
		return manifest.FileEntry{}, &wheelcore.ZipError{Detail: err.Error()}
	}

	integrity, err := contentStore.Commit(ctx, writer)
	if err != nil {
		return manifest.FileEntry{}, err
	}

	var mode *uint32
	if m := uint32(f.ExternalAttrs >> 16); m != 0 {
		perm := m & 0o7777
		mode = &perm
	}

	return manifest.FileEntry{
		Content: integrity.String(),
		SHA256:  store.FormatSHA256(sha.Sum(nil)),
		Mode:    mode,
	}, nil
}
