package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/distribution/wheelcore/archive"
	"github.com/distribution/wheelcore/store"
	"github.com/distribution/wheelcore/store/driver/filesystem"
)

// buildFixtureWheel builds a tiny in-memory zip resembling
// miniblack-23.1.0-py3-none-any.whl: a package module, a dist-info
// METADATA file, and an empty directory entry.
func buildFixtureWheel(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	write("miniblack/__init__.py", "VERSION = \"23.1.0\"\n")
	write("miniblack-23.1.0.dist-info/METADATA", "Name: miniblack\nVersion: 23.1.0\n\n")
	if _, err := zw.Create("miniblack/data/"); err != nil {
		t.Fatalf("Create(dir): %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractIsDeterministic(t *testing.T) {
	fixture := buildFixtureWheel(t)
	s := store.New(filesystem.New(t.TempDir()))

	m1, err := archive.Extract(context.Background(), s, bytes.NewReader(fixture))
	if err != nil {
		t.Fatalf("Extract (first): %v", err)
	}
	m2, err := archive.Extract(context.Background(), s, bytes.NewReader(fixture))
	if err != nil {
		t.Fatalf("Extract (second): %v", err)
	}

	if !m1.Equal(m2) {
		t.Fatal("two extractions of the same archive produced different manifests")
	}

	for name, entry := range m1.Files {
		if !strings.HasPrefix(entry.SHA256, "sha256=") {
			t.Fatalf("file %s has SHA256 %q, want sha256= prefix", name, entry.SHA256)
		}
	}

	wantNames := map[string]bool{
		"miniblack/__init__.py":                     true,
		"miniblack-23.1.0.dist-info/METADATA":        true,
		"miniblack/data":                             true,
	}
	gotNames := map[string]bool{}
	for name := range m1.Files {
		gotNames[name] = true
	}
	for _, dir := range m1.Directories {
		gotNames[dir] = true
	}
	if len(gotNames) != len(wantNames) {
		t.Fatalf("got entries %v, want %v", gotNames, wantNames)
	}
	for name := range wantNames {
		if !gotNames[name] {
			t.Fatalf("missing expected entry %q in %v", name, gotNames)
		}
	}
}

func TestExtractRejectsPathEscape(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../../etc/passwd")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("evil")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}

	s := store.New(filesystem.New(t.TempDir()))
	if _, err := archive.Extract(context.Background(), s, bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected an error extracting an archive with a path-escaping entry")
	}
}
