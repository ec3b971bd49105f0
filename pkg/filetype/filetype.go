// Package filetype classifies uploaded files by extension and content.
package filetype

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category groups mime types for display.
type Category string

const (
	CategoryCode     Category = "CODE"
	CategoryDocument Category = "DOCUMENT"
	CategoryImage    Category = "IMAGE"
	CategoryVideo    Category = "VIDEO"
	CategoryAudio    Category = "AUDIO"
	CategoryArchive  Category = "ARCHIVE"
	CategoryOther    Category = "OTHER"
)

// Info is the classification of one file.
type Info struct {
	MimeType  string
	Category  Category
	Extension string
}

var byExtension = map[string]string{
	"js":   "application/javascript",
	"mjs":  "application/javascript",
	"jsx":  "application/javascript",
	"ts":   "application/typescript",
	"tsx":  "application/typescript",
	"py":   "text/python",
	"java": "text/x-java",
	"c":    "text/x-c",
	"h":    "text/x-c",
	"cpp":  "text/x-cpp",
	"cc":   "text/x-cpp",
	"hpp":  "text/x-cpp",
	"go":   "text/x-go",
	"rs":   "text/x-rust",
	"rb":   "text/x-ruby",
	"sh":   "text/x-shellscript",
	"json": "application/json",
	"yaml": "application/yaml",
	"yml":  "application/yaml",
	"html": "text/html",
	"css":  "text/css",

	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"txt":  "text/plain",
	"md":   "text/markdown",

	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",

	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",

	"mp3": "audio/mpeg",
	"wav": "audio/wav",
	"aac": "audio/aac",

	"zip": "application/zip",
	"rar": "application/x-rar-compressed",
	"7z":  "application/x-7z-compressed",
	"tar": "application/x-tar",
	"gz":  "application/gzip",
	"tgz": "application/gzip",
}

var byMimeType = map[string]Category{
	"application/javascript": CategoryCode,
	"application/typescript": CategoryCode,
	"text/javascript":        CategoryCode,
	"text/typescript":        CategoryCode,
	"text/python":            CategoryCode,
	"text/x-python":          CategoryCode,
	"text/x-java":            CategoryCode,
	"text/x-c":               CategoryCode,
	"text/x-cpp":             CategoryCode,
	"text/x-go":              CategoryCode,
	"text/x-rust":            CategoryCode,
	"text/x-ruby":            CategoryCode,
	"text/x-shellscript":     CategoryCode,
	"application/json":       CategoryCode,
	"application/yaml":       CategoryCode,
	"text/html":              CategoryCode,
	"text/css":               CategoryCode,

	"application/pdf":    CategoryDocument,
	"application/msword": CategoryDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": CategoryDocument,
	"application/vnd.ms-excel": CategoryDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": CategoryDocument,
	"text/plain":    CategoryDocument,
	"text/markdown": CategoryDocument,

	"application/zip":              CategoryArchive,
	"application/x-rar-compressed": CategoryArchive,
	"application/x-7z-compressed":  CategoryArchive,
	"application/x-tar":            CategoryArchive,
	"application/gzip":             CategoryArchive,
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Classify determines the mime type and category of a file. Known
// extensions win; otherwise the content is sniffed.
func Classify(name string, data []byte) Info {
	ext := Extension(name)
	mt, ok := byExtension[ext]
	if !ok {
		mt = mimetype.Detect(data).String()
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
	}
	return Info{MimeType: mt, Category: CategoryOf(mt), Extension: ext}
}

// CategoryOf returns the category of a mime type.
func CategoryOf(mimeType string) Category {
	if c, ok := byMimeType[mimeType]; ok {
		return c
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	}
	return CategoryOther
}
