// Package driver defines the pluggable storage backend that a Content
// Store writes its blobs through, and a name-keyed factory for
// constructing one from configuration. Modeled on the registry's
// StorageDriver + storagedriver/factory pattern: callers never talk to a
// backend SDK directly, only to this interface.
package driver

import (
	"context"
	"fmt"
	"io"
)

// Driver is the storage backend a Content Store is built on. A Driver
// does not know about Integrity or content-addressing; it is a plain
// path-keyed blob store. The Content Store layers content-addressing on
// top by choosing paths derived from digests.
type Driver interface {
	// Name identifies the driver, e.g. for diagnostics.
	Name() string

	// Exists reports whether content is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetContent reads the entire blob at path.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent writes content at path, replacing any existing blob.
	PutContent(ctx context.Context, path string, content []byte) error

	// Writer returns a handle that streams bytes to path. If append is
	// true and a partial upload already exists at path, writes resume
	// after its current length; otherwise any existing content at path
	// is truncated. Whether bytes written before Commit are visible at
	// path depends on the driver: the buffering cloud drivers upload only
	// on Commit, while the filesystem driver writes in place. The Content
	// Store's atomic promote-on-commit therefore comes from writing to a
	// temporary path and Moving the blob into place after Commit.
	Writer(ctx context.Context, path string, append bool) (FileWriter, error)

	// Reader opens path for reading starting at the given byte offset.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Delete removes path (and, for directory-shaped drivers, everything
	// under it).
	Delete(ctx context.Context, path string) error

	// Move relocates content from sourcePath to destPath, overwriting any
	// existing blob at destPath. Used to promote a committed temp upload
	// into its final content-addressed location.
	Move(ctx context.Context, sourcePath, destPath string) error
}

// FileWriter is a streaming write handle. Size reports bytes written so
// far (including any data resumed from a prior partial write). Cancel
// discards everything written; Commit makes the write durable and
// visible at the target path. Close without Commit uploads nothing in
// the buffering cloud drivers; the filesystem driver leaves the bytes
// written so far at the target path.
type FileWriter interface {
	io.WriteCloser
	Size() int64
	Cancel(ctx context.Context) error
	Commit(ctx context.Context) error
}

// Factory constructs a Driver from a parameter bag. Parameters are
// decoded with mapstructure by each concrete driver package, mirroring
// storagedriver/factory's map[string]interface{} convention.
type Factory func(parameters map[string]interface{}) (Driver, error)

var factories = map[string]Factory{}

// Register adds a Factory under name. Driver packages call this from an
// init() function, the same registration idiom the registry's
// storagedriver/factory package uses.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// New constructs the named driver with the given parameters.
func New(name string, parameters map[string]interface{}) (Driver, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("driver: no storage driver registered with name %q", name)
	}
	return factory(parameters)
}
