package manifest_test

import (
	"testing"

	"github.com/distribution/wheelcore/manifest"
)

func sampleManifest() *manifest.Manifest {
	m := manifest.New()
	m.Directories = []string{"miniblack", "miniblack/data"}
	mode := uint32(0o644)
	m.Files["miniblack/__init__.py"] = manifest.FileEntry{
		Content: "xxh64-abc123",
		SHA256:  "sha256=deadbeef",
		Mode:    &mode,
	}
	m.Files["miniblack-23.1.0.dist-info/METADATA"] = manifest.FileEntry{
		Content: "xxh64-def456",
		SHA256:  "sha256=cafef00d",
	}
	m.Links["miniblack/compat.py"] = "miniblack/__init__.py"
	return m
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	m := sampleManifest()
	buf := manifest.Serialize(m)

	om, err := manifest.Validate(buf)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	owned := manifest.DeserializeToOwned(om)

	if !m.Equal(owned) {
		t.Fatal("round-tripped manifest does not equal the original")
	}
}

func TestSerializeIsDeterministicAcrossMapIterationOrder(t *testing.T) {
	m1 := sampleManifest()
	m2 := sampleManifest()

	if string(manifest.Serialize(m1)) != string(manifest.Serialize(m2)) {
		t.Fatal("serializing equal manifests twice produced different bytes")
	}
}

func TestViewLookup(t *testing.T) {
	m := sampleManifest()
	buf := manifest.Serialize(m)

	om, err := manifest.Validate(buf)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	view := manifest.Deref(om)

	content, sha, mode, ok := view.Lookup("miniblack/__init__.py")
	if !ok {
		t.Fatal("Lookup did not find an entry known to exist")
	}
	if content != "xxh64-abc123" || sha != "sha256=deadbeef" {
		t.Fatalf("Lookup returned (%q, %q), want (xxh64-abc123, sha256=deadbeef)", content, sha)
	}
	if mode == nil || *mode != 0o644 {
		t.Fatalf("Lookup returned mode %v, want 0644", mode)
	}

	if _, _, _, ok := view.Lookup("does/not/exist"); ok {
		t.Fatal("Lookup found an entry that was never recorded")
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	if _, err := manifest.Validate([]byte("not a manifest at all")); err == nil {
		t.Fatal("expected an error validating a buffer with the wrong magic")
	}
}

func TestValidateRejectsTruncatedBuffer(t *testing.T) {
	buf := manifest.Serialize(sampleManifest())
	if _, err := manifest.Validate(buf[:len(buf)/2]); err == nil {
		t.Fatal("expected an error validating a truncated buffer")
	}
}
