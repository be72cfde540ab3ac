// Package aliyun is a store/driver.Driver backend on Aliyun OSS, built
// atop denverdino/aliyungo's oss client.
package aliyun

import (
	"bytes"
	"context"
	"io"

	"github.com/denverdino/aliyungo/oss"
	"github.com/mitchellh/mapstructure"

	storedriver "github.com/distribution/wheelcore/store/driver"
)

func init() {
	storedriver.Register("aliyun", fromParameters)
}

// Params configures the Aliyun OSS driver.
type Params struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accesskeyid"`
	SecretKey string `mapstructure:"accesskeysecret"`
	Bucket    string `mapstructure:"bucket"`
}

func fromParameters(parameters map[string]interface{}) (storedriver.Driver, error) {
	var p Params
	if err := mapstructure.Decode(parameters, &p); err != nil {
		return nil, err
	}
	if p.Bucket == "" || p.Endpoint == "" {
		return nil, &ParamError{}
	}

	client := oss.NewOSSClient(p.Endpoint, false, p.AccessKey, p.SecretKey, true)
	bucket := client.Bucket(p.Bucket)
	return &Driver{bucket: bucket}, nil
}

// ParamError reports a missing required Aliyun OSS driver parameter.
type ParamError struct{}

func (e *ParamError) Error() string { return "aliyun: endpoint and bucket are required" }

// Driver is a store/driver.Driver backed by an Aliyun OSS bucket.
type Driver struct {
	bucket *oss.Bucket
}

func (d *Driver) Name() string { return "aliyun" }

func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	return d.bucket.Exists(path)
}

func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	return d.bucket.Get(path)
}

func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	return d.bucket.Put(path, content, "application/octet-stream", oss.Private, oss.Options{})
}

func (d *Driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	rc, err := d.bucket.GetReader(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
			rc.Close()
			return nil, err
		}
	}
	return rc, nil
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	return d.bucket.Del(path)
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	if _, err := d.bucket.CopyObject(sourcePath, destPath, oss.CopyOptions{}); err != nil {
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
