package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/studyrag/ai/mock"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
	"github.com/poiesic/studyrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedIndex stores n chunks split over two documents using a constant embedder.
func seedIndex(t *testing.T, n int) *badger.Repositories {
	t.Helper()
	constant := mock.NewMockEmbedder()
	constant.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{2, 0, 0}
		}
		return out, nil
	}
	repos, err := badger.NewMemoryRepositories(constant)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	for _, doc := range []string{"doc-a", "doc-b"} {
		chunks := make([]core.Chunk, n/2)
		for i := range chunks {
			chunks[i] = core.Chunk{
				Content:  fmt.Sprintf("%s chunk %d", doc, i),
				Metadata: core.ChunkMetadata{DocumentID: doc, Filename: doc + ".txt", ChunkIndex: i, TotalChunks: len(chunks)},
			}
		}
		_, err := repos.Index.Insert(context.Background(), doc, chunks)
		require.NoError(t, err)
	}
	return repos
}

func allEntries(t *testing.T, index storage.IndexRepository) []*core.IndexedVector {
	t.Helper()
	var out []*core.IndexedVector
	require.NoError(t, index.ForEachBatch(context.Background(), 50, func(batch []*core.IndexedVector) error {
		out = append(out, batch...)
		return nil
	}))
	return out
}

func fastConfig(batchSize int) *Config {
	return &Config{BatchSize: batchSize, ReportInterval: 1, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestNewReembedder_Validation(t *testing.T) {
	repos := seedIndex(t, 2)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), nil, nil)
	assert.Equal(t, ErrIndexRequired, err)

	_, err = NewReembedder(repos.Index, nil, nil, nil)
	assert.Equal(t, ErrEmbedderRequired, err)

	r, err := NewReembedder(repos.Index, mock.NewMockEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.iterator.BatchSize())
}

func TestReembedder_Run(t *testing.T) {
	repos := seedIndex(t, 10)
	embedder := mock.NewMockEmbedder()

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Index, embedder, fastConfig(3), &buf)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 4, embedder.CallCount(), "10 chunks in batches of 3")

	for _, entry := range allEntries(t, repos.Index) {
		expected := NormalizeVector(mock.DeterministicVector(entry.Chunk.Content, mock.DefaultDimensions))
		assert.InDeltaSlice(t, expected, entry.Vector, 1e-6, entry.ID)
		assert.InDelta(t, 1.0, magnitude(entry.Vector), 1e-5)
		assert.NotEmpty(t, entry.Chunk.Metadata.DocumentID, "metadata is preserved")
	}

	output := buf.String()
	assert.Contains(t, output, "Starting re-embedding of 10 chunks (batch size: 3)")
	assert.Contains(t, output, "10/10 chunks")
	assert.Contains(t, output, "Re-embedding complete. Processed 10 chunks")
}

func TestReembedder_QueriesUseNewVectors(t *testing.T) {
	repos := seedIndex(t, 4)

	r, err := NewReembedder(repos.Index, mock.NewMockEmbedder(), fastConfig(10), nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	// Query with the same deterministic embedder the index was rebuilt with.
	index, err := badger.NewIndexRepository(repos.Backend, mock.NewMockEmbedder())
	require.NoError(t, err)

	results, err := index.Query(context.Background(), "doc-b chunk 1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-b chunk 1", results[0].Content)
	assert.InDelta(t, 1.0, results[0].RelevanceScore, 1e-5)
}

func TestReembedder_EmptyIndex(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(mock.NewMockEmbedder())
	require.NoError(t, err)
	defer repos.Close()

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Index, mock.NewMockEmbedder(), fastConfig(5), &buf)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, buf.String(), "No chunks found")
}

func TestReembedder_RetriesTransientFailures(t *testing.T) {
	repos := seedIndex(t, 6)
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("429 too many requests")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 8)
		}
		return out, nil
	}

	r, err := NewReembedder(repos.Index, embedder, fastConfig(10), nil)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int32(2), calls.Load())
}

func TestReembedder_StopsOnPersistentFailure(t *testing.T) {
	repos := seedIndex(t, 6)
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		// The first batch succeeds, every later call fails.
		if calls.Add(1) == 1 {
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{0, 3, 4}
			}
			return out, nil
		}
		return nil, errors.New("service unavailable")
	}

	r, err := NewReembedder(repos.Index, embedder, fastConfig(2), nil)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(1+3), calls.Load(), "one good batch then three attempts")

	entries := allEntries(t, repos.Index)
	assert.Equal(t, []float32{0, 0.6, 0.8}, entries[0].Vector)
	assert.Equal(t, []float32{2, 0, 0}, entries[2].Vector, "later batches keep their old vectors")
}

func TestReembedder_CountMismatch(t *testing.T) {
	repos := seedIndex(t, 4)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}

	r, err := NewReembedder(repos.Index, embedder, fastConfig(4), nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, storage.ErrVectorCountMismatch)
}

func TestReembedder_Cancelled(t *testing.T) {
	repos := seedIndex(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		cancel()
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}

	r, err := NewReembedder(repos.Index, embedder, fastConfig(2), nil)
	require.NoError(t, err)

	n, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n, "the batch in flight is not written after cancellation")
}
