package models

import (
	"strings"
	"time"
)

// DefaultExtension is used when a filename carries no usable suffix.
const DefaultExtension = "txt"

// MaxExtensionLength keeps {identifier}.{extension} within file name limits.
const MaxExtensionLength = 128

// Artifact represents a stored file: its metadata row plus, when loaded
// explicitly, its byte content.
type Artifact struct {
	Identifier string    `json:"identifier"`
	Filename   string    `json:"filename"`
	Extension  string    `json:"extension"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Seq        int64     `json:"-"` // insertion order, breaks created_at ties
	Content    []byte    `json:"-"` // Not exposed in JSON
}

// ExtensionFromFilename returns the lower-cased last dot-separated segment
// of filename, or DefaultExtension when there is none. A segment that could
// not be used as a content key suffix (path separators, NUL, over-long) also
// yields DefaultExtension.
//
//	notes.txt          -> txt
//	README             -> txt
//	archive.tar.gz     -> gz
//	release v1.2 notes -> 2 notes
//	report.d/final     -> txt
func ExtensionFromFilename(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return DefaultExtension
	}
	ext := strings.ToLower(filename[idx+1:])
	if ext == "" || len(ext) > MaxExtensionLength || strings.ContainsAny(ext, "/\\\x00") {
		return DefaultExtension
	}
	return ext
}

// ContentKey is the name of the content entry for an identifier/extension pair.
func ContentKey(identifier, extension string) string {
	return identifier + "." + extension
}

// Language is an editor language hint offered to clients.
type Language struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SupportedLanguages lists the language hints clients may pick from.
var SupportedLanguages = []Language{
	{Label: "Auto-detect", Value: "auto"},
	{Label: "JavaScript", Value: "js"},
	{Label: "JSX", Value: "jsx"},
	{Label: "TypeScript", Value: "ts"},
	{Label: "TSX", Value: "tsx"},
	{Label: "CSS", Value: "css"},
	{Label: "Python", Value: "py"},
	{Label: "Markdown", Value: "md"},
	{Label: "MDX", Value: "mdx"},
	{Label: "Plain text", Value: "txt"},
}

// LanguageForExtension maps an extension to the highlighting mode an editor
// should load for it. Unknown extensions map to "" (no highlighting).
func LanguageForExtension(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "js", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	case "css":
		return "css"
	case "py":
		return "python"
	case "md", "mdx", "mdc":
		return "markdown"
	default:
		return ""
	}
}
