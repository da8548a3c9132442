package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
)

// BatchProcessor re-embeds batches of index entries and writes the new vectors back.
type BatchProcessor struct {
	index          storage.IndexRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(index storage.IndexRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		index:          index,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the chunk text of every entry in one call, normalizes the
// vectors and stores them. Entries are updated in place.
func (bp *BatchProcessor) Process(ctx context.Context, entries []*core.IndexedVector) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Chunk.Content
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(entries), err)
	}

	if len(vectors) != len(entries) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", storage.ErrVectorCountMismatch, len(vectors), len(entries))
	}

	for i := range entries {
		entries[i].Vector = NormalizeVector(vectors[i])
	}

	if err := bp.index.UpdateVectors(ctx, entries); err != nil {
		return fmt.Errorf("storing vectors: %w", err)
	}
	return nil
}
