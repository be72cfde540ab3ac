package buildcoordinator_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/distribution/wheelcore/buildcoordinator"
)

func buildWheelBytes(t *testing.T, distInfoPrefix, metadataBody string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(distInfoPrefix + ".dist-info/METADATA")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte(metadataBody)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractMetadata(t *testing.T) {
	archiveBytes := buildWheelBytes(t, "rich-13.6.0", "Name: rich\nVersion: 13.6.0\n\n")
	filename, err := buildcoordinator.ParseWheelFilename("rich-13.6.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename: %v", err)
	}

	raw, parsed, err := buildcoordinator.ExtractMetadata(archiveBytes, filename)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if parsed.Name != "rich" || parsed.Version != "13.6.0" {
		t.Fatalf("unexpected parsed metadata: %+v", parsed)
	}
	if len(raw) == 0 {
		t.Fatal("ExtractMetadata returned empty raw bytes")
	}
}

func TestExtractMetadataRejectsVersionMismatch(t *testing.T) {
	archiveBytes := buildWheelBytes(t, "rich-13.6.0", "Name: rich\nVersion: 99.0.0\n\n")
	filename, err := buildcoordinator.ParseWheelFilename("rich-13.6.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename: %v", err)
	}

	if _, _, err := buildcoordinator.ExtractMetadata(archiveBytes, filename); err == nil {
		t.Fatal("expected a consistency error for a filename/metadata version mismatch")
	}
}

func TestExtractMetadataMissingDistInfo(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
	filename, err := buildcoordinator.ParseWheelFilename("rich-13.6.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename: %v", err)
	}

	if _, _, err := buildcoordinator.ExtractMetadata(buf.Bytes(), filename); err == nil {
		t.Fatal("expected an error when the dist-info directory is absent")
	}
}
