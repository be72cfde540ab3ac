// Package s3 is a store/driver.Driver backend on Amazon S3, built on
// aws-sdk-go. Rather than streaming multipart uploads, this driver
// buffers a blob in memory and issues a single PutObject on Commit —
// blobs and archives at this scale (individual files, wheels, sdists)
// do not warrant multipart complexity, and the content store above this
// driver already writes to a temporary key before promoting it, so
// partial uploads are never visible regardless.
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/mitchellh/mapstructure"

	storedriver "github.com/distribution/wheelcore/store/driver"
)

func init() {
	storedriver.Register("s3", fromParameters)
}

// Params configures the S3 driver.
type Params struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
}

func fromParameters(parameters map[string]interface{}) (storedriver.Driver, error) {
	var p Params
	if err := mapstructure.Decode(parameters, &p); err != nil {
		return nil, err
	}
	if p.Bucket == "" || p.Region == "" {
		return nil, &ParamError{}
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(p.Region)})
	if err != nil {
		return nil, err
	}
	return &Driver{bucket: p.Bucket, svc: s3.New(sess)}, nil
}

// ParamError reports a missing required S3 driver parameter.
type ParamError struct{}

func (e *ParamError) Error() string { return "s3: bucket and region are required" }

// Driver is a store/driver.Driver backed by an S3 bucket.
type Driver struct {
	bucket string
	svc    *s3.S3
}

func (d *Driver) Name() string { return "s3" }

func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := d.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return true, nil
	}
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == "NotFound" {
		return false, nil
	}
	return false, err
}

func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	out, err := d.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	_, err := d.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(content),
	})
	return err
}

func (d *Driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(path)}
	if offset > 0 {
		input.Range = aws.String(rangeHeader(offset))
	}
	out, err := d.svc.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	_, err := d.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path),
	})
	return err
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	_, err := d.svc.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		CopySource: aws.String(d.bucket + "/" + sourcePath),
		Key:        aws.String(destPath),
	})
	if err != nil {
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

// fileWriter buffers a blob in memory until Commit, matching the
// Content Store's own temp-then-promote contract: nothing is visible to
// Exists/GetContent at path until Commit issues the PutObject.
type fileWriter struct {
	ctx     context.Context
	driver  *Driver
	path    string
	buf     bytes.Buffer
	closed  bool
	aborted bool
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fileWriter) Size() int64                 { return int64(w.buf.Len()) }

func (w *fileWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fileWriter) Cancel(ctx context.Context) error {
	w.aborted = true
	return w.Close()
}

func (w *fileWriter) Commit(ctx context.Context) error {
	if w.aborted {
		return nil
	}
	return w.driver.PutContent(ctx, w.path, w.buf.Bytes())
}

func rangeHeader(offset int64) string {
	return "bytes=" + itoa(offset) + "-"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
