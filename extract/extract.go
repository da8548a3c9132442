package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var supported = []string{".pdf", ".txt", ".md"}

// SupportedExtensions returns the lower-case extensions Text accepts.
func SupportedExtensions() []string {
	return slices.Clone(supported)
}

// Supported reports whether filename has an extension Text accepts.
func Supported(filename string) bool {
	return slices.Contains(supported, Extension(filename))
}

// Extension returns the lower-cased extension of filename, including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Text extracts the plain text of a document. The extractor is picked from
// the extension of filename.
func Text(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch Extension(filename) {
	case ".txt", ".md":
		return decodeText(data)
	case ".pdf":
		return pdfText(ctx, data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}
}
