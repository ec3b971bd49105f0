// Package extract reads zip and tar archives uploaded as project content and
// materializes them into a scratch directory.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mshare/mshare/internal/apperr"
)

// Format identifies an archive container.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
)

var contentTypes = map[string]Format{
	"application/zip":              FormatZip,
	"application/x-zip-compressed": FormatZip,
	"application/x-tar":            FormatTar,
	"application/gzip":             FormatTarGzip,
	"application/x-gzip":           FormatTarGzip,
	"application/x-gtar":           FormatTarGzip,
}

// DetectFormat decides whether an upload is an archive from its file name
// and declared content type. The bytes are not inspected, so container-based
// documents such as .docx stay ordinary files.
func DetectFormat(name, contentType string) (Format, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, true
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip, true
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	f, ok := contentTypes[ct]
	return f, ok
}

// ExtractionError reports a malformed or unsafe archive.
type ExtractionError struct {
	Op   string
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("extract %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("extract %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{apperr.ErrExtraction, e.Err}
}

// Entry is one member of an archive.
type Entry struct {
	// Path is slash-separated and relative to the archive root.
	Path  string
	IsDir bool
	Size  int64

	open func() (io.ReadCloser, error)
}

// Open returns the entry's content. For tar archives the stream is only
// valid until the next call to Next.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.IsDir {
		return nil, &ExtractionError{Op: "open", Path: e.Path, Err: fmt.Errorf("entry is a directory")}
	}
	rc, err := e.open()
	if err != nil {
		return nil, &ExtractionError{Op: "open", Path: e.Path, Err: err}
	}
	return rc, nil
}

// Archive iterates archive entries lazily. Next returns io.EOF after the
// last entry.
type Archive interface {
	Next() (*Entry, error)
	Close() error
}

// Open starts iterating the archive held in data. Each call restarts the
// sequence from the first entry.
func Open(format Format, data []byte) (Archive, error) {
	switch format {
	case FormatZip:
		return openZip(data)
	case FormatTar:
		return openTar(bytes.NewReader(data), nil), nil
	case FormatTarGzip:
		return openTarGzip(data)
	default:
		return nil, &ExtractionError{Op: "open", Err: fmt.Errorf("unsupported format %q", format)}
	}
}

// cleanPath normalizes an entry name and rejects names that escape the
// archive root. An empty result means the entry names the root itself.
func cleanPath(name string) (string, error) {
	p := strings.ReplaceAll(name, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", &ExtractionError{Op: "read", Path: name, Err: fmt.Errorf("entry escapes archive root")}
		}
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/"), nil
}
