package files

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxStemBytes bounds the part of a stored name before its extension, leaving
// room for a " (N)" suffix under the 255-byte filesystem name limit.
const maxStemBytes = 200

// SanitizeFilename reduces a client-supplied filename to a safe ASCII base
// name. It returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, name); err == nil {
		name = folded
	}

	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	name = strings.Trim(b.String(), "._")

	ext := filepath.Ext(name)
	if stem := strings.TrimSuffix(name, ext); len(stem) > maxStemBytes {
		name = strings.TrimRight(stem[:maxStemBytes], "._") + ext
	}
	return name
}

// candidateName returns the n-th name tried for a stored file: name itself
// for n == 0, then "stem (n).ext".
func candidateName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
}

// extension returns the lowercase extension of name without the dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// validStoredName reports whether name can refer to a file directly inside
// a project directory. Names such as "a..b.txt" are fine; os.Root rejects
// anything that would resolve outside the directory.
func validStoredName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
