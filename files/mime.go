package files

import (
	"mime"
	"path/filepath"
	"strings"
)

// Extensions the platform MIME table commonly misses for source files.
var extMIME = map[string]string{
	".jsx":    "text/javascript",
	".tsx":    "text/typescript",
	".ts":     "text/typescript",
	".vue":    "text/html",
	".svelte": "text/html",
	".md":     "text/markdown",
	".json":   "application/json",
	".py":     "text/x-python",
	".js":     "text/javascript",
	".go":     "text/x-go",
	".css":    "text/css",
	".html":   "text/html",
	".xml":    "text/xml",
	".yaml":   "text/yaml",
	".yml":    "text/yaml",
	".toml":   "text/plain",
	".ini":    "text/plain",
	".cfg":    "text/plain",
	".conf":   "text/plain",
	".sh":     "text/x-shellscript",
	".bat":    "text/plain",
	".sql":    "text/x-sql",
}

// DetectMIME guesses a MIME type from the file extension, falling back to
// text/plain.
func DetectMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extMIME[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "text/plain"
}
