package buildcoordinator_test

import (
	"testing"

	"github.com/distribution/wheelcore/buildcoordinator"
)

func TestParseWheelFilename(t *testing.T) {
	f, err := buildcoordinator.ParseWheelFilename("Rich-13.6.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename: %v", err)
	}
	if f.Distribution != "Rich" || f.Version != "13.6.0" || f.Interpreter != "py3" || f.ABI != "none" || f.Platform != "any" {
		t.Fatalf("unexpected parse result: %+v", f)
	}
	if f.Build != "" {
		t.Fatalf("expected no build tag, got %q", f.Build)
	}
	if got, want := f.DistInfoPrefix(), "rich-13.6.0"; got != want {
		t.Fatalf("DistInfoPrefix() = %q, want %q", got, want)
	}
}

func TestParseWheelFilenameWithBuildTag(t *testing.T) {
	f, err := buildcoordinator.ParseWheelFilename("somepkg-1.0-2-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename: %v", err)
	}
	if f.Build != "2" {
		t.Fatalf("Build = %q, want 2", f.Build)
	}
}

func TestParseWheelFilenameRejectsMalformedName(t *testing.T) {
	if _, err := buildcoordinator.ParseWheelFilename("not-a-wheel.txt"); err == nil {
		t.Fatal("expected an error for a non-wheel filename")
	}
}

func TestNormalizeDistName(t *testing.T) {
	cases := map[string]string{
		"Foo.Bar":   "foo_bar",
		"foo--bar":  "foo_bar",
		"FOO_BAR":   "foo_bar",
		"foo.-_bar": "foo_bar",
	}
	for in, want := range cases {
		if got := buildcoordinator.NormalizeDistName(in); got != want {
			t.Errorf("NormalizeDistName(%q) = %q, want %q", in, got, want)
		}
	}
}
