package extract

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// pdfText extracts text page by page. Pages without text are skipped.
func pdfText(ctx context.Context, data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", ErrExtractionFailed, r)
		}
	}()

	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	pages, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	parts := make([]string, 0, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page.PageContent) == "" {
			continue
		}
		parts = append(parts, "[Page "+strconv.Itoa(pageNumber(page.Metadata, i))+"]\n"+page.PageContent)
	}
	return strings.Join(parts, "\n\n"), nil
}

// pageNumber reads the 1-based page number the loader records, falling back
// to the position in the result.
func pageNumber(metadata map[string]any, index int) int {
	switch v := metadata["page"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return index + 1
}
