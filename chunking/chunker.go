package chunking

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/studyrag/core"
)

const (
	// DefaultChunkSize is the target maximum chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of trailing characters of the previous
	// chunk prepended to each following chunk.
	DefaultChunkOverlap = 200
)

// separators are tried in order, from coarsest to finest. The empty
// separator splits into single characters and always succeeds.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits document text into overlapping chunks.
// A Chunker is immutable after construction and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
	logger  *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in characters.
// Values below 1 are clamped to 1.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		if size < 1 {
			size = 1
		}
		c.size = size
		return nil
	}
}

// WithChunkOverlap sets the overlap length in characters.
// Negative values disable overlap.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			overlap = 0
		}
		c.overlap = overlap
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Chunker with the default size and overlap, then applies opts.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	if c.overlap >= c.size {
		c.logger.Warn("chunk overlap is not smaller than chunk size", "size", c.size, "overlap", c.overlap)
	}
	return c, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split normalizes whitespace in text and cuts it into chunks tagged with
// the owning document. Chunk indices are dense and start at zero.
// Empty input yields an empty, non-nil slice.
func (c *Chunker) Split(text, documentID, filename string) []core.Chunk {
	text = normalizeWhitespace(text)
	if text == "" {
		return []core.Chunk{}
	}

	pieces := c.applyOverlap(c.splitRecursive(text, separators))

	contents := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			contents = append(contents, p)
		}
	}

	chunks := make([]core.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = core.Chunk{
			Content: content,
			Metadata: core.ChunkMetadata{
				DocumentID:  documentID,
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(contents),
			},
		}
	}

	c.logger.Debug("split document", "document", documentID, "chars", utf8.RuneCountInString(text), "chunks", len(chunks))
	return chunks
}

// splitRecursive greedily packs parts of text into buffers no longer than
// the chunk size, descending to finer separators for parts that do not fit.
// The separator is kept after every part except the last so that joining
// the output reproduces the input up to whitespace.
func (c *Chunker) splitRecursive(text string, seps []string) []string {
	if len(seps) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	sep, rest := seps[0], seps[1:]

	var parts []string
	if sep == "" {
		parts = splitRunes(text)
	} else {
		parts = strings.Split(text, sep)
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
		bufLen = 0
	}

	for i, part := range parts {
		piece := part
		if sep != "" && i < len(parts)-1 {
			piece = part + sep
		}
		pieceLen := utf8.RuneCountInString(piece)

		if bufLen+pieceLen <= c.size {
			buf.WriteString(piece)
			bufLen += pieceLen
			continue
		}

		flush()
		if pieceLen > c.size && len(rest) > 0 {
			chunks = append(chunks, c.splitRecursive(piece, rest)...)
			continue
		}
		buf.WriteString(piece)
		bufLen = pieceLen
	}
	flush()

	return chunks
}

// applyOverlap prefixes every chunk after the first with the tail of the
// chunk before it. The tail is taken from the un-overlapped chunk.
func (c *Chunker) applyOverlap(chunks []string) []string {
	if c.overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tail(chunks[i-1], c.overlap) + " " + chunks[i]
	}
	return out
}

// tail returns the last n characters of s, or s when it is shorter.
func tail(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	skip := count - n
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return ""
}

// splitRunes splits s into single-character strings.
func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// normalizeWhitespace collapses every whitespace run into a single space and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
