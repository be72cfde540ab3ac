// Package azure is a store/driver.Driver backend on Azure Blob Storage,
// built on azure-sdk-for-go's storage package. Like the s3 driver in
// this family, writes are buffered in memory and committed with a
// single block blob upload.
package azure

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/storage"
	"github.com/mitchellh/mapstructure"

	storedriver "github.com/distribution/wheelcore/store/driver"
)

func init() {
	storedriver.Register("azure", fromParameters)
}

// Params configures the Azure driver.
type Params struct {
	AccountName string `mapstructure:"accountname"`
	AccountKey  string `mapstructure:"accountkey"`
	Container   string `mapstructure:"container"`
}

func fromParameters(parameters map[string]interface{}) (storedriver.Driver, error) {
	var p Params
	if err := mapstructure.Decode(parameters, &p); err != nil {
		return nil, err
	}
	if p.AccountName == "" || p.Container == "" {
		return nil, &ParamError{}
	}

	client, err := storage.NewBasicClient(p.AccountName, p.AccountKey)
	if err != nil {
		return nil, err
	}
	blobService := client.GetBlobService()
	container := blobService.GetContainerReference(p.Container)
	return &Driver{container: container}, nil
}

// ParamError reports a missing required Azure driver parameter.
type ParamError struct{}

func (e *ParamError) Error() string { return "azure: accountname and container are required" }

// Driver is a store/driver.Driver backed by an Azure Blob Storage
// container.
type Driver struct {
	container *storage.Container
}

func (d *Driver) Name() string { return "azure" }

func (d *Driver) blobRef(path string) *storage.Blob {
	return d.container.GetBlobReference(path)
}

func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	return d.blobRef(path).Exists()
}

func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	rc, err := d.blobRef(path).Get(nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	blob := d.blobRef(path)
	return blob.CreateBlockBlobFromReader(bytes.NewReader(content), nil)
}

func (d *Driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	blob := d.blobRef(path)
	if offset > 0 {
		opts := &storage.GetBlobRangeOptions{
			Range: &storage.BlobRange{Start: uint64(offset)},
		}
		return blob.GetRange(opts)
	}
	return blob.Get(nil)
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	_, err := d.blobRef(path).DeleteIfExists(nil)
	return err
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	content, err := d.GetContent(ctx, sourcePath)
	if err != nil {
		return err
	}
	if err := d.PutContent(ctx, destPath, content); err != nil {
		return err
	}
	return d.Delete(ctx, sourcePath)
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
