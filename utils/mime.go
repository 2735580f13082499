package utils

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	plainText   = "text/plain; charset=utf-8"
	octetStream = "application/octet-stream"
)

// Extensions an editor user is likely to save. mime.TypeByExtension depends
// on the host's mime tables, so the common ones are pinned here.
var extensionTypes = map[string]string{
	"txt":  plainText,
	"log":  plainText,
	"md":   "text/markdown; charset=utf-8",
	"mdx":  "text/markdown; charset=utf-8",
	"css":  "text/css; charset=utf-8",
	"html": "text/html; charset=utf-8",
	"htm":  "text/html; charset=utf-8",
	"js":   "text/javascript; charset=utf-8",
	"jsx":  "text/javascript; charset=utf-8",
	"mjs":  "text/javascript; charset=utf-8",
	"ts":   plainText,
	"tsx":  plainText,
	"py":   "text/x-python; charset=utf-8",
	"go":   plainText,
	"sh":   "application/x-sh",
	"json": "application/json",
	"xml":  "application/xml",
	"yaml": "application/x-yaml",
	"yml":  "application/x-yaml",
	"csv":  "text/csv; charset=utf-8",
	"svg":  "image/svg+xml",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
}

// ContentTypeForExtension maps a bare extension ("md", not ".md") to a MIME
// type, falling back to application/octet-stream.
func ContentTypeForExtension(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		return octetStream
	}
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return octetStream
}

// DetectContentType attempts to detect the MIME type of content
// It first tries to detect from the filename, then from the content itself
func DetectContentType(filename string, content []byte) string {
	if ext := filepath.Ext(filename); ext != "" {
		if ct := ContentTypeForExtension(ext); ct != octetStream {
			return ct
		}
	}

	if len(content) > 0 {
		return http.DetectContentType(content)
	}

	return octetStream
}

// IsTextContent returns true if the content type is text-based
func IsTextContent(contentType string) bool {
	textTypes := []string{
		"text/",
		"application/json",
		"application/xml",
		"application/javascript",
		"application/x-sh",
		"application/x-yaml",
		"image/svg+xml",
	}

	contentType = strings.ToLower(contentType)
	for _, textType := range textTypes {
		if strings.HasPrefix(contentType, textType) {
			return true
		}
	}

	return false
}

// SafeRawContentType returns the type to serve stored bytes with. Anything
// textual is served as text/plain so browsers never execute uploaded markup.
func SafeRawContentType(filename string, content []byte) string {
	ct := DetectContentType(filename, content)
	if IsTextContent(ct) {
		return plainText
	}
	return ct
}
