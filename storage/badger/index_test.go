package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/studyrag/ai/mock"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorTable returns an embedder that maps known texts to fixed vectors.
func vectorTable(table map[string][]float32) *mock.MockEmbedder {
	lookup := func(text string) []float32 {
		if v, ok := table[text]; ok {
			return v
		}
		return []float32{0, 0, 1}
	}
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		return lookup(text), nil
	}
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = lookup(text)
		}
		return out, nil
	}
	return embedder
}

func makeChunks(documentID, filename string, contents ...string) []core.Chunk {
	chunks := make([]core.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = core.Chunk{
			Content: c,
			Metadata: core.ChunkMetadata{
				DocumentID:  documentID,
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(contents),
			},
		}
	}
	return chunks
}

func newTestRepos(t *testing.T, embedder *mock.MockEmbedder, opts ...IndexOption) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestNewIndexRepository_RequiresCollaborators(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewIndexRepository(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, storage.ErrBackendRequired)

	_, err = NewIndexRepository(backend, nil)
	assert.ErrorIs(t, err, storage.ErrEmbedderRequired)

	_, err = NewIndexRepository(backend, mock.NewMockEmbedder(), WithDefaultTopK(0))
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_InsertEmpty(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	repos := newTestRepos(t, embedder)

	n, err := repos.Index.Insert(context.Background(), "doc1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestIndex_InsertEmbedsOnce(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	repos := newTestRepos(t, embedder)
	ctx := context.Background()

	n, err := repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", "one", "two", "three"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, embedder.CallCount())

	count, err := repos.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndex_InsertVectorCountMismatchWritesNothing(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}
	repos := newTestRepos(t, embedder)
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", "one", "two"))
	assert.ErrorIs(t, err, storage.ErrVectorCountMismatch)

	count, err := repos.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIndex_InsertEmbeddingFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	repos := newTestRepos(t, embedder)

	_, err := repos.Index.Insert(context.Background(), "doc1", makeChunks("doc1", "a.txt", "one"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestIndex_InsertOverwritesByKey(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", "old zero", "old one"))
	require.NoError(t, err)
	_, err = repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", "new zero", "new one"))
	require.NoError(t, err)

	count, err := repos.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var contents []string
	err = repos.Index.ForEachBatch(ctx, 10, func(batch []*core.IndexedVector) error {
		for _, v := range batch {
			contents = append(contents, v.Chunk.Content)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new zero", "new one"}, contents)
}

func TestIndex_QueryEmpty(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())

	results, err := repos.Index.Query(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestIndex_QueryRanking(t *testing.T) {
	embedder := vectorTable(map[string][]float32{
		"exact":      {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
		"opposite":   {-1, 0, 0},
		"question":   {1, 0, 0},
	})
	repos := newTestRepos(t, embedder)
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", "orthogonal", "exact", "opposite", "close"))
	require.NoError(t, err)

	results, err := repos.Index.Query(ctx, "question", 10)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "exact", results[0].Content)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1, results[0].RelevanceScore, 1e-6)
	assert.Equal(t, "close", results[1].Content)
	assert.Equal(t, "orthogonal", results[2].Content)
	assert.Equal(t, "opposite", results[3].Content)
	assert.InDelta(t, 2, results[3].Distance, 1e-6)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		assert.InDelta(t, 1-results[i].Distance, results[i].RelevanceScore, 1e-6)
	}
	assert.Equal(t, "a.txt", results[0].Metadata.Filename)
	assert.Equal(t, 1, results[0].Metadata.ChunkIndex)
}

func TestIndex_QueryTopK(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())
	ctx := context.Background()

	contents := make([]string, 8)
	for i := range contents {
		contents[i] = fmt.Sprintf("chunk %d", i)
	}
	_, err := repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", contents...))
	require.NoError(t, err)

	results, err := repos.Index.Query(ctx, "chunk", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = repos.Index.Query(ctx, "chunk", 0)
	require.NoError(t, err)
	assert.Len(t, results, defaultTopK)
}

func TestIndex_QueryTiesBrokenByKey(t *testing.T) {
	embedder := vectorTable(map[string][]float32{
		"same a": {1, 0, 0},
		"same b": {1, 0, 0},
		"q":      {1, 0, 0},
	})
	repos := newTestRepos(t, embedder)
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "docB", makeChunks("docB", "b.txt", "same b"))
	require.NoError(t, err)
	_, err = repos.Index.Insert(ctx, "docA", makeChunks("docA", "a.txt", "same a"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		results, err := repos.Index.Query(ctx, "q", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "docA", results[0].Metadata.DocumentID)
	}
}

func TestIndex_DeleteByDocument(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "doc1", makeChunks("doc1", "a.txt", "a", "b", "c"))
	require.NoError(t, err)
	_, err = repos.Index.Insert(ctx, "doc10", makeChunks("doc10", "b.txt", "d", "e"))
	require.NoError(t, err)

	ok, err := repos.Index.DeleteByDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := repos.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "doc10 shares a prefix with doc1 and must survive")

	ids, err := repos.Index.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc10"}, ids)

	ok, err = repos.Index.DeleteByDocument(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, ok, "delete reports store openness, not existence")
}

func TestIndex_DeleteByDocumentClosed(t *testing.T) {
	repos, err := NewMemoryRepositories(mock.NewMockEmbedder())
	require.NoError(t, err)
	require.NoError(t, repos.Close())

	ok, err := repos.Index.DeleteByDocument(context.Background(), "doc1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndex_InsertDeleteRoundTrip(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "keep", makeChunks("keep", "k.txt", "kept"))
	require.NoError(t, err)
	before, err := repos.Index.Query(ctx, "kept", 5)
	require.NoError(t, err)

	_, err = repos.Index.Insert(ctx, "temp", makeChunks("temp", "t.txt", "x", "y"))
	require.NoError(t, err)
	_, err = repos.Index.DeleteByDocument(ctx, "temp")
	require.NoError(t, err)

	after, err := repos.Index.Query(ctx, "kept", 5)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIndex_ForEachBatch(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())
	ctx := context.Background()

	contents := make([]string, 7)
	for i := range contents {
		contents[i] = fmt.Sprintf("c%d", i)
	}
	_, err := repos.Index.Insert(ctx, "doc", makeChunks("doc", "d.txt", contents...))
	require.NoError(t, err)

	var sizes []int
	seen := map[string]bool{}
	err = repos.Index.ForEachBatch(ctx, 3, func(batch []*core.IndexedVector) error {
		sizes = append(sizes, len(batch))
		for _, v := range batch {
			seen[v.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)

	err = repos.Index.ForEachBatch(ctx, 0, func([]*core.IndexedVector) error { return nil })
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_UpdateVectors(t *testing.T) {
	embedder := vectorTable(map[string][]float32{"a": {1, 0, 0}, "q": {0, 1, 0}})
	repos := newTestRepos(t, embedder)
	ctx := context.Background()

	_, err := repos.Index.Insert(ctx, "doc", makeChunks("doc", "d.txt", "a"))
	require.NoError(t, err)

	err = repos.Index.UpdateVectors(ctx, []*core.IndexedVector{{ID: "doc_0", Vector: []float32{0, 1, 0}}})
	require.NoError(t, err)

	results, err := repos.Index.Query(ctx, "q", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Content, "chunk content is preserved")
	assert.InDelta(t, 1, results[0].RelevanceScore, 1e-6)

	err = repos.Index.UpdateVectors(ctx, []*core.IndexedVector{{ID: "nope_0", Vector: []float32{1}}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndex_ConcurrentDocuments(t *testing.T) {
	repos := newTestRepos(t, mock.NewMockEmbedder())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc%02d", i)
			_, err := repos.Index.Insert(ctx, id, makeChunks(id, id+".txt", "a", "b", "c"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := repos.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, count)

	ids, err := repos.Index.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}

func TestIndex_InsertLargerThanOneTransaction(t *testing.T) {
	backend := openSmallTxnBackend(t)
	index, err := NewIndexRepository(backend, vectorTable(nil))
	require.NoError(t, err)
	ctx := context.Background()

	contents := make([]string, 300)
	for i := range contents {
		contents[i] = fmt.Sprintf("chunk %03d %s", i, strings.Repeat("x", 120))
	}
	n, err := index.Insert(ctx, "doc_big", makeChunks("doc_big", "big.txt", contents...))
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, count)

	results, err := index.Query(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	deleted, err := index.DeleteByDocument(ctx, "doc_big")
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err = index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
