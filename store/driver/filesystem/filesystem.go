// Package filesystem is the default store/driver.Driver backend: a plain
// local directory tree, written via a temp-file-then-rename commit
// idiom.
package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/distribution/wheelcore/store/driver"
)

func init() {
	driver.Register("filesystem", fromParameters)
}

// Params configures the filesystem driver. RootDirectory is the only
// required field; decoded from a map[string]interface{} via mapstructure,
// mirroring every other driver in this package family.
type Params struct {
	RootDirectory string `mapstructure:"rootdirectory"`
}

func fromParameters(parameters map[string]interface{}) (driver.Driver, error) {
	var p Params
	if err := mapstructure.Decode(parameters, &p); err != nil {
		return nil, err
	}
	if p.RootDirectory == "" {
		return nil, &MissingParameterError{Name: "rootdirectory"}
	}
	return New(p.RootDirectory), nil
}

// MissingParameterError reports an absent required driver parameter.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return "filesystem: missing required parameter " + e.Name
}

// Driver is a store/driver.Driver rooted at a local directory.
type Driver struct {
	root string
}

// New constructs a filesystem Driver rooted at root.
func New(root string) *Driver {
	return &Driver{root: root}
}

func (d *Driver) Name() string { return "filesystem" }

func (d *Driver) fullPath(p string) string {
	return filepath.Join(d.root, filepath.FromSlash(p))
}

func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(d.fullPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(d.fullPath(path))
}

func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	full := d.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

func (d *Driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(d.fullPath(path))
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	return os.RemoveAll(d.fullPath(path))
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	full := d.fullPath(destPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.Rename(d.fullPath(sourcePath), full)
}

// SetModTime implements store.ModTimeSetter.
func (d *Driver) SetModTime(ctx context.Context, path string, mtimeMs int64) error {
	t := time.UnixMilli(mtimeMs)
	return os.Chtimes(d.fullPath(path), t, t)
}

func (d *Driver) Writer(ctx context.Context, path string, append bool) (driver.FileWriter, error) {
	full := d.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}

	flags := os.O_WRONLY | os.O_CREATE
	var size int64
	if append {
		flags |= os.O_APPEND
		if fi, err := os.Stat(full); err == nil {
			size = fi.Size()
		}
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileWriter{f: f, path: full, size: size}, nil
}

// fileWriter writes directly to the destination path; Commit is a no-op
// sync+close because the filesystem backend has no separate staging area.
// Cancel removes the partial file so a cancelled write leaves nothing
// behind, matching the "no partial blob is ever visible" invariant at the
// Content Store layer above this driver (which always writes to a
// temporary path and Moves it into place only after a successful Commit).
type fileWriter struct {
	f      *os.File
	path   string
	size   int64
	closed bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fileWriter) Size() int64 { return w.size }

func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

func (w *fileWriter) Cancel(ctx context.Context) error {
	w.Close()
	return os.Remove(w.path)
}

func (w *fileWriter) Commit(ctx context.Context) error {
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.Close()
}
