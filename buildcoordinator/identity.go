// Package buildcoordinator implements the source-to-binary build
// coordinator: binary-archive cache fast path, single-flight sandbox
// provisioning, sandbox execution protocol, and failure handling with
// optional sandbox preservation.
package buildcoordinator

import "fmt"

// SourceIdentity uniquely identifies a source distribution: distribution
// name, version, and a content hash of the source archive bytes. Two
// sdists with identical name/version but different bytes (e.g. a
// tampered re-upload) are distinct identities.
type SourceIdentity struct {
	Name         string
	Version      string
	ContentHash  string
}

// String renders a stable, human-readable identity key, used as the map
// key for the ready/in_flight registries.
func (s SourceIdentity) String() string {
	return fmt.Sprintf("%s-%s@%s", s.Name, s.Version, s.ContentHash)
}

// BuildCacheKey identifies a previously-built binary archive in the
// external binary-archive cache. Derived from SourceIdentity plus the
// interpreter version the archive was built for.
type BuildCacheKey struct {
	Source             SourceIdentity
	InterpreterVersion string
}

// String renders the canonical cache key.
func (k BuildCacheKey) String() string {
	return fmt.Sprintf("%s/%s", k.Source.String(), k.InterpreterVersion)
}
