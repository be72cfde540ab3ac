// Package wheelcore implements the content-addressed extraction cache and
// concurrent build coordinator described by the error kinds below.
package wheelcore

import "fmt"

// Sentinel errors for conditions that carry no extra context.
var (
	// ErrCacheMiss names a binary-archive cache lookup that found nothing.
	// BinaryArchiveCache.Get reports a miss through its boolean result,
	// not through this error; a miss means "proceed to build".
	ErrCacheMiss = fmt.Errorf("wheelcore: binary archive cache miss")

	// ErrBuildSetupPanicked distinguishes a provisioner that panicked from
	// one that returned an ordinary error.
	ErrBuildSetupPanicked = fmt.Errorf("wheelcore: sandbox provisioning panicked")
)

// InvalidEntryError reports a malformed or unsafe archive entry name.
type InvalidEntryError struct {
	Name   string
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("wheelcore: invalid archive entry %q: %s", e.Name, e.Reason)
}

// ZipError wraps a low-level zip decoding failure.
type ZipError struct {
	Detail string
}

func (e *ZipError) Error() string {
	return fmt.Sprintf("wheelcore: zip decode error: %s", e.Detail)
}

// IOError reports a file-system or subprocess I/O failure against a path.
type IOError struct {
	Path   string
	Detail string
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wheelcore: io error at %q: %s", e.Path, e.Detail)
}

// CacheError reports a Content Store commit or read failure.
type CacheError struct {
	Path   string
	Detail string
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("wheelcore: cache error at %q: %s", e.Path, e.Detail)
}

// DistInfoMissingError is returned when an archive has no dist-info directory.
type DistInfoMissingError struct {
	Prefix string
}

func (e *DistInfoMissingError) Error() string {
	return fmt.Sprintf("wheelcore: no dist-info directory for prefix %q", e.Prefix)
}

// MetadataMissingError is returned when a dist-info directory has no
// METADATA member.
type MetadataMissingError struct {
	DistInfoDir string
}

func (e *MetadataMissingError) Error() string {
	return fmt.Sprintf("wheelcore: %s has no METADATA file", e.DistInfoDir)
}

// WheelMissingError is returned when a sandbox's wheel_result names a path
// that does not exist.
type WheelMissingError struct {
	Path string
}

func (e *WheelMissingError) Error() string {
	return fmt.Sprintf("wheelcore: produced wheel missing at %q", e.Path)
}

// MultipleSpecialDirsError reports an archive with more than one candidate
// directory of the named kind (e.g. "dist-info").
type MultipleSpecialDirsError struct {
	Kind string
}

func (e *MultipleSpecialDirsError) Error() string {
	return fmt.Sprintf("wheelcore: multiple %s directories found", e.Kind)
}

// FailedToParseError reports a filename/metadata mismatch or a syntactic
// metadata parse failure.
type FailedToParseError struct {
	Reason string
}

func (e *FailedToParseError) Error() string {
	return fmt.Sprintf("wheelcore: failed to parse: %s", e.Reason)
}

// CorruptedArchiveError reports a manifest byte buffer that failed codec
// validation.
type CorruptedArchiveError struct {
	Reason string
}

func (e *CorruptedArchiveError) Error() string {
	return fmt.Sprintf("wheelcore: corrupted manifest: %s", e.Reason)
}

// BuildError reports a sandbox build command that exited non-zero.
type BuildError struct {
	Phase  string
	Stderr string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("wheelcore: build phase %s failed: %s", e.Phase, e.Stderr)
}

// BuildSetupError reports sandbox-provisioning failure. Panicked
// distinguishes a provisioner that panicked from an ordinary
// provisioning error.
type BuildSetupError struct {
	Reason    string
	Panicked  bool
	SourceRef string
}

func (e *BuildSetupError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("wheelcore: sandbox setup for %s panicked: %s", e.SourceRef, e.Reason)
	}
	return fmt.Sprintf("wheelcore: sandbox setup for %s failed: %s", e.SourceRef, e.Reason)
}

func (e *BuildSetupError) Unwrap() error {
	if e.Panicked {
		return ErrBuildSetupPanicked
	}
	return nil
}
