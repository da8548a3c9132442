package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_PlainUTF8(t *testing.T) {
	text, err := Text(context.Background(), []byte("Hello, wörld"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello, wörld", text)
}

func TestText_MarkdownUsesTextDecoder(t *testing.T) {
	text, err := Text(context.Background(), []byte("# Title\n\nBody"), "README.MD")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", text)
}

func TestText_StripsUTF8BOM(t *testing.T) {
	text, err := Text(context.Background(), append([]byte{0xEF, 0xBB, 0xBF}, "abc"...), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestText_UTF16WithBOM(t *testing.T) {
	le := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	text, err := Text(context.Background(), le, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	be := []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}
	text, err = Text(context.Background(), be, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestText_Windows1252Fallback(t *testing.T) {
	// 0x93/0x94 are curly quotes and 0xE9 is é in Windows-1252.
	data := []byte{0x93, 'c', 'a', 'f', 0xE9, 0x94}
	text, err := Text(context.Background(), data, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "“café”", text)
}

func TestText_UnsupportedType(t *testing.T) {
	_, err := Text(context.Background(), []byte("x"), "slides.pptx")
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = Text(context.Background(), []byte("x"), "noextension")
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestText_MalformedPDF(t *testing.T) {
	_, err := Text(context.Background(), []byte("definitely not a pdf"), "paper.pdf")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestText_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Text(ctx, []byte("x"), "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupported(t *testing.T) {
	tests := map[string]bool{
		"a.pdf":  true,
		"a.PDF":  true,
		"b.txt":  true,
		"c.md":   true,
		"d.docx": false,
		"e":      false,
	}
	for name, want := range tests {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPageNumber(t *testing.T) {
	assert.Equal(t, 3, pageNumber(map[string]any{"page": 3}, 0))
	assert.Equal(t, 2, pageNumber(map[string]any{"page": float64(2)}, 0))
	assert.Equal(t, 5, pageNumber(nil, 4))
}
