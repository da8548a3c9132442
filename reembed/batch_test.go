package reembed

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/studyrag/ai/mock"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	repos := seedIndex(t, 2)
	embedder := mock.NewMockEmbedder()
	bp := NewBatchProcessor(repos.Index, embedder, 3, time.Millisecond)

	require.NoError(t, bp.Process(context.Background(), nil))
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_UnknownEntry(t *testing.T) {
	repos := seedIndex(t, 2)
	bp := NewBatchProcessor(repos.Index, mock.NewMockEmbedder(), 1, time.Millisecond)

	err := bp.Process(context.Background(), []*core.IndexedVector{{
		ID:    "ghost_0",
		Chunk: core.Chunk{Content: "never indexed"},
	}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchProcessor_EmbedsChunkContent(t *testing.T) {
	repos := seedIndex(t, 4)
	embedder := mock.NewMockEmbedder()
	var got []string
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		got = append(got, texts...)
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 1}
		}
		return out, nil
	}
	bp := NewBatchProcessor(repos.Index, embedder, 1, time.Millisecond)

	entries := allEntries(t, repos.Index)
	require.NoError(t, bp.Process(context.Background(), entries))

	assert.Equal(t, []string{"doc-a chunk 0", "doc-a chunk 1", "doc-b chunk 0", "doc-b chunk 1"}, got)
	for _, e := range entries {
		assert.InDeltaSlice(t, []float32{0.70710677, 0.70710677}, e.Vector, 1e-6)
	}
}
