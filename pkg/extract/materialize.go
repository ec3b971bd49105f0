package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Stats summarizes a materialized archive.
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Materialize writes every entry of a into dir, creating missing parent
// directories. Duplicate file entries overwrite earlier ones and are counted
// once. When maxBytes is positive, extraction stops with an ExtractionError
// once the bytes written exceed it.
func Materialize(ctx context.Context, a Archive, dir string, maxBytes int64) (Stats, error) {
	var (
		stats   Stats
		written int64
	)
	files := make(map[string]int64)
	dirs := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry, err := a.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		target := filepath.Join(dir, filepath.FromSlash(entry.Path))
		if entry.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, &ExtractionError{Op: "mkdir", Path: entry.Path, Err: err}
			}
			dirs[entry.Path] = true
			continue
		}

		remaining := int64(-1)
		if maxBytes > 0 {
			remaining = maxBytes - written
		}
		n, err := writeEntry(entry, target, remaining)
		if err != nil {
			return stats, err
		}
		written += n
		files[entry.Path] = n
	}

	stats.Files = len(files)
	stats.Dirs = len(dirs)
	for _, n := range files {
		stats.Bytes += n
	}
	return stats, nil
}

// writeEntry copies one file entry to target. A non-negative limit caps the
// bytes the entry may contribute.
func writeEntry(entry *Entry, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, &ExtractionError{Op: "mkdir", Path: entry.Path, Err: err}
	}
	rc, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	f, err := os.Create(target)
	if err != nil {
		return 0, &ExtractionError{Op: "create", Path: entry.Path, Err: err}
	}
	var src io.Reader = rc
	if limit >= 0 {
		src = io.LimitReader(rc, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit >= 0 && n > limit {
		err = errors.New("extracted content exceeds the size limit")
	}
	if err != nil {
		return n, &ExtractionError{Op: "write", Path: entry.Path, Err: err}
	}
	return n, nil
}
