// Package swift is a store/driver.Driver backend on OpenStack Swift,
// built on ncw/swift.
package swift

import (
	"bytes"
	"context"
	"io"

	"github.com/mitchellh/mapstructure"
	"github.com/ncw/swift"

	storedriver "github.com/distribution/wheelcore/store/driver"
)

func init() {
	storedriver.Register("swift", fromParameters)
}

// Params configures the Swift driver.
type Params struct {
	AuthURL   string `mapstructure:"authurl"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Container string `mapstructure:"container"`
}

func fromParameters(parameters map[string]interface{}) (storedriver.Driver, error) {
	var p Params
	if err := mapstructure.Decode(parameters, &p); err != nil {
		return nil, err
	}
	if p.AuthURL == "" || p.Container == "" {
		return nil, &ParamError{}
	}

	conn := &swift.Connection{
		UserName: p.Username,
		ApiKey:   p.Password,
		AuthUrl:  p.AuthURL,
	}
	if err := conn.Authenticate(); err != nil {
		return nil, err
	}
	return &Driver{conn: conn, container: p.Container}, nil
}

// ParamError reports a missing required Swift driver parameter.
type ParamError struct{}

func (e *ParamError) Error() string { return "swift: authurl and container are required" }

// Driver is a store/driver.Driver backed by an OpenStack Swift container.
type Driver struct {
	conn      *swift.Connection
	container string
}

func (d *Driver) Name() string { return "swift" }

func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	_, _, err := d.conn.Object(d.container, path)
	if err == nil {
		return true, nil
	}
	if err == swift.ObjectNotFound {
		return false, nil
	}
	return false, err
}

func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	content, err := d.conn.ObjectGetBytes(d.container, path)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	return d.conn.ObjectPutBytes(d.container, path, content, "application/octet-stream")
}

func (d *Driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	file, _, err := d.conn.ObjectOpen(d.container, path, true, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return nil, err
		}
	}
	return file, nil
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	return d.conn.ObjectDelete(d.container, path)
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	if err := d.conn.ObjectMove(d.container, sourcePath, d.container, destPath); err != nil {
		return err
	}
	return nil
}

func (d *Driver) Writer(ctx context.Context, path string, append bool) (storedriver.FileWriter, error) {
	w := &fileWriter{ctx: ctx, driver: d, path: path}
	if append {
		if existing, err := d.GetContent(ctx, path); err == nil {
			w.buf.Write(existing)
		}
	}
	return w, nil
}

type fileWriter struct {
	ctx     context.Context
	driver  *Driver
	path    string
	buf     bytes.Buffer
	aborted bool
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fileWriter) Size() int64                 { return int64(w.buf.Len()) }
func (w *fileWriter) Close() error                { return nil }

func (w *fileWriter) Cancel(ctx context.Context) error {
	w.aborted = true
	return nil
}

func (w *fileWriter) Commit(ctx context.Context) error {
	if w.aborted {
		return nil
	}
	return w.driver.PutContent(ctx, w.path, w.buf.Bytes())
}
