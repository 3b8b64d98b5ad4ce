package constants

import "strings"

// AllowedExtensions holds the document extensions accepted by the URL collector.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsDocumentURL reports whether a URL names a document we can ingest.
func IsDocumentURL(raw string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	i := strings.LastIndex(trimmed, ".")
	if i < 0 {
		return false
	}
	_, ok := AllowedExtensions[NormalizeExt(trimmed[i:])]
	return ok
}
