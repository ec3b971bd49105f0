package extract

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

type tarArchive struct {
	r      *tar.Reader
	closer io.Closer
}

func openTar(r io.Reader, closer io.Closer) *tarArchive {
	return &tarArchive{r: tar.NewReader(r), closer: closer}
}

func openTarGzip(data []byte) (*tarArchive, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ExtractionError{Op: "open gzip", Err: err}
	}
	return openTar(zr, zr), nil
}

func (a *tarArchive) Next() (*Entry, error) {
	for {
		hdr, err := a.r.Next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, &ExtractionError{Op: "read tar", Err: err}
		}

		var isDir bool
		switch hdr.Typeflag {
		case tar.TypeDir:
			isDir = true
		case tar.TypeReg:
		default:
			// Links, devices and pax/global headers carry no content.
			continue
		}

		p, err := cleanPath(hdr.Name)
		if err != nil {
			return nil, err
		}
		if p == "" {
			continue
		}
		r := a.r
		return &Entry{
			Path:  p,
			IsDir: isDir,
			Size:  hdr.Size,
			open:  func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		}, nil
	}
}

func (a *tarArchive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
