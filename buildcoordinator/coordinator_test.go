package buildcoordinator_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/distribution/wheelcore/buildcoordinator"
	"github.com/distribution/wheelcore/buildcoordinator/cache/memcache"
)

// backendScript is a POSIX shell build backend implementing the sandbox
// execution protocol: given a phase and an output directory, it either
// writes a metadata_result pointing at a generated dist-info directory,
// or copies a pre-built wheel (supplied via the WHEEL_SRC / WHEEL_NAME
// env vars) into the output directory and writes wheel_result. Setting
// FORCE_FALLBACK makes the WheelMetadata phase exit 50, the sentinel the
// coordinator must treat as "fall back to a full build".
const backendScript = `
phase="$1"
outdir="$2"
case "$phase" in
  WheelMetadata)
    if [ -n "$FORCE_FALLBACK" ]; then
      exit 50
    fi
    mkdir -p "$outdir/distinfo"
    printf 'Name: rich\nVersion: 13.6.0\n\n' > "$outdir/distinfo/METADATA"
    printf '%s' "$outdir/distinfo" > "$outdir/metadata_result"
    ;;
  Wheel)
    cp "$WHEEL_SRC" "$outdir/$WHEEL_NAME"
    printf '%s' "$outdir/$WHEEL_NAME" > "$outdir/wheel_result"
    ;;
esac
`

func backendCommand() []string {
	return []string{"sh", "-c", backendScript, "wheelcore-backend"}
}

func buildWheelFixture(t *testing.T, dir, name, distInfoPrefix string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.whl")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(distInfoPrefix + ".dist-info/METADATA")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("Name: rich\nVersion: 13.6.0\n\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func newTestCoordinator(t *testing.T, cache buildcoordinator.BinaryArchiveCache) (*buildcoordinator.Coordinator, string) {
	t.Helper()
	provisioner, err := buildcoordinator.NewLocalProvisioner(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvisioner: %v", err)
	}
	coord := buildcoordinator.NewCoordinator(provisioner, backendCommand(), cache)

	wheelDir := t.TempDir()
	wheelPath := buildWheelFixture(t, wheelDir, "rich-13.6.0-py3-none-any.whl", "rich-13.6.0")
	return coord, wheelPath
}

func testEnvVars(wheelPath string) map[string]string {
	return map[string]string{
		"WHEEL_SRC":  wheelPath,
		"WHEEL_NAME": "rich-13.6.0-py3-none-any.whl",
	}
}

func TestBuildCachesSubsequentLookups(t *testing.T) {
	cache := memcache.New(8)
	coord, wheelPath := newTestCoordinator(t, cache)
	source := buildcoordinator.SourceIdentity{Name: "rich", Version: "13.6.0", ContentHash: "h1"}

	archive, err := coord.Build(context.Background(), source, "3.11.0", testEnvVars(wheelPath))
	if err != nil {
		t.Fatalf("Build (first): %v", err)
	}
	if archive.Filename != "rich-13.6.0-py3-none-any.whl" {
		t.Fatalf("unexpected archive filename %q", archive.Filename)
	}

	key := buildcoordinator.BuildCacheKey{Source: source, InterpreterVersion: "3.11.0"}
	if got, ok, err := cache.Get(context.Background(), key); err != nil || !ok {
		t.Fatalf("expected the build to populate the cache: ok=%v err=%v", ok, err)
	} else if got.Filename != archive.Filename {
		t.Fatalf("cached archive filename %q, want %q", got.Filename, archive.Filename)
	}

	missKey := buildcoordinator.BuildCacheKey{Source: source, InterpreterVersion: "1.0.0"}
	if _, ok, err := cache.Get(context.Background(), missKey); err != nil || ok {
		t.Fatalf("expected a cache miss for a different interpreter version: ok=%v err=%v", ok, err)
	}
}

func TestMetadataOfFallsBackToFullBuildOnExit50(t *testing.T) {
	coord, wheelPath := newTestCoordinator(t, nil)
	source := buildcoordinator.SourceIdentity{Name: "rich", Version: "13.6.0", ContentHash: "h2"}

	env := testEnvVars(wheelPath)
	env["FORCE_FALLBACK"] = "1"

	raw, parsed, err := coord.MetadataOf(context.Background(), source, "3.11.0", env)
	if err != nil {
		t.Fatalf("MetadataOf: %v", err)
	}
	if parsed.Name != "rich" || parsed.Version != "13.6.0" {
		t.Fatalf("unexpected parsed metadata: %+v", parsed)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty raw metadata bytes from the fallback build")
	}
}

func TestBuildPreservesSandboxOnFailureWhenConfigured(t *testing.T) {
	provisioner, err := buildcoordinator.NewLocalProvisioner(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvisioner: %v", err)
	}
	// A backend that always fails the Wheel phase.
	coord := buildcoordinator.NewCoordinator(provisioner, []string{"sh", "-c", "exit 1", "wheelcore-backend"}, nil)
	coord.OnFailure = buildcoordinator.Preserve

	source := buildcoordinator.SourceIdentity{Name: "tampered-rich", Version: "13.6.0", ContentHash: "h3"}
	if _, err := coord.Build(context.Background(), source, "3.11.0", nil); err == nil {
		t.Fatal("expected the build to fail")
	}

	preserved := coord.PreservedSandboxes()
	if len(preserved) != 1 {
		t.Fatalf("PreservedSandboxes() has %d entries, want 1", len(preserved))
	}
	for _, dir := range preserved {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("preserved sandbox directory %q does not exist: %v", dir, err)
		}
	}
}
