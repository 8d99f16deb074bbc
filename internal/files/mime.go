package files

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Content sniffing reports text/plain for every text format; the extension
// decides the more specific type.
var textTypes = map[string]string{
	"md":   "text/markdown",
	"csv":  "text/csv",
	"json": "application/json",
}

// DetectContentType returns the MIME type for a file from its first bytes,
// refined by the extension of name for text formats.
func DetectContentType(head []byte, name string) string {
	contentType := mimetype.Detect(head).String()
	if strings.HasPrefix(contentType, "text/plain") {
		if refined, ok := textTypes[extension(name)]; ok {
			return strings.Replace(contentType, "text/plain", refined, 1)
		}
	}
	return contentType
}
