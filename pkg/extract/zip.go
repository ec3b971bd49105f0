package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

type zipArchive struct {
	files []*zip.File
	next  int
}

func openZip(data []byte) (*zipArchive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Op: "open zip", Err: err}
	}
	return &zipArchive{files: r.File}, nil
}

func (a *zipArchive) Next() (*Entry, error) {
	for a.next < len(a.files) {
		f := a.files[a.next]
		a.next++

		p, err := cleanPath(f.Name)
		if err != nil {
			return nil, err
		}
		if p == "" {
			continue
		}
		isDir := f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/")
		if !isDir && !f.FileInfo().Mode().IsRegular() {
			continue
		}
		return &Entry{
			Path:  p,
			IsDir: isDir,
			Size:  int64(f.UncompressedSize64),
			open:  func() (io.ReadCloser, error) { return f.Open() },
		}, nil
	}
	return nil, io.EOF
}

func (a *zipArchive) Close() error { return nil }
