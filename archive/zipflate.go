package archive

import (
	"archive/zip"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

var registerFlateOnce sync.Once

// useFastInflate swaps the zip package's default (stdlib compress/flate)
// decompressor for klauspost/compress/flate, the same throughput-over-
// compatibility substitution the pack uses elsewhere (e.g.
// containerd/stargz-snapshotter registers the same package the same way)
// for faster inflate of deflate-compressed zip entries.
func useFastInflate() {
	registerFlateOnce.Do(func() {
		zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
			return flate.NewReader(r)
		})
	})
}
