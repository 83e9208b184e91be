// Package archive keeps the original bytes of uploaded documents.
package archive

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"unicode"
)

// Archive stores uploaded originals by display filename.
type Archive interface {
	// Save stores data and returns where it was put.
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// Delete removes the original of name. Missing objects are not an error.
	Delete(ctx context.Context, name string) error
}

// ObjectKey maps a display filename to its stored name: a short hash of the
// filename, an underscore, then the sanitized filename. Names that sanitize
// alike keep distinct keys.
func ObjectKey(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%08x_%s", h.Sum32(), sanitize(name))
}

func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, base)
	clean = strings.TrimLeft(clean, ".")
	if clean == "" {
		return "file"
	}
	return clean
}

// Nop discards everything.
type Nop struct{}

func (Nop) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	return "", nil
}

func (Nop) Delete(ctx context.Context, name string) error { return nil }
