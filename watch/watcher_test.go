package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/studyrag/ai/mock"
	"github.com/poiesic/studyrag/chunking"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/extract"
	"github.com/poiesic/studyrag/ingestion"
	"github.com/poiesic/studyrag/storage"
	"github.com/poiesic/studyrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingIngester counts calls per path.
type recordingIngester struct {
	mu      sync.Mutex
	ingests map[string]int
	deletes []string
}

func newRecordingIngester() *recordingIngester {
	return &recordingIngester{ingests: map[string]int{}}
}

func (r *recordingIngester) IngestFile(_ context.Context, path string) (*core.DocumentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingests[path]++
	return &core.DocumentInfo{ID: "x", SourcePath: path}, nil
}

func (r *recordingIngester) IngestFiles(ctx context.Context, paths []string) []ingestion.IngestResult {
	out := make([]ingestion.IngestResult, len(paths))
	for i, p := range paths {
		doc, err := r.IngestFile(ctx, p)
		out[i] = ingestion.IngestResult{Path: p, Document: doc, Err: err}
	}
	return out
}

func (r *recordingIngester) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	return true, nil
}

func (r *recordingIngester) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ingests[path]
}

type emptyRegistry struct{}

func (emptyRegistry) FindBySourcePath(context.Context, string) (*core.DocumentInfo, error) {
	return nil, storage.ErrNotFound
}

func startWatcher(t *testing.T, w *Watcher, dir string) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give fsnotify time to register the directory.
	time.Sleep(100 * time.Millisecond)
	return cancel
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, emptyRegistry{})
	assert.Equal(t, ErrIngesterRequired, err)

	_, err = New(newRecordingIngester(), nil)
	assert.Equal(t, ErrRegistryRequired, err)

	_, err = New(newRecordingIngester(), emptyRegistry{}, WithExtensions("docx"))
	assert.ErrorIs(t, err, extract.ErrUnsupportedType)

	_, err = New(newRecordingIngester(), emptyRegistry{}, WithDebounce(-time.Second))
	assert.Error(t, err)

	w, err := New(newRecordingIngester(), emptyRegistry{}, WithExtensions("TXT", ".md"))
	require.NoError(t, err)
	assert.Equal(t, []string{".txt", ".md"}, w.extensions)
}

func TestRun_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	w, err := New(newRecordingIngester(), emptyRegistry{})
	require.NoError(t, err)
	assert.ErrorIs(t, w.Run(context.Background(), file), ErrNotDirectory)
}

func TestWatched(t *testing.T) {
	w, err := New(newRecordingIngester(), emptyRegistry{}, WithExtensions(".txt"))
	require.NoError(t, err)

	assert.True(t, w.watched("/tmp/a.txt"))
	assert.True(t, w.watched("/tmp/A.TXT"))
	assert.False(t, w.watched("/tmp/a.md"))
	assert.False(t, w.watched("/tmp/.a.txt"), "hidden editor files are ignored")
}

func TestRun_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	ingester := newRecordingIngester()
	w, err := New(ingester, emptyRegistry{}, WithDebounce(150*time.Millisecond))
	require.NoError(t, err)
	startWatcher(t, w, dir)

	path := filepath.Join(dir, "notes.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("draft "+string(rune('a'+i))), 0o644))
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0o644))

	assert.Eventually(t, func() bool { return ingester.count(path) == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, ingester.count(path), "burst of writes is ingested once")
	assert.Zero(t, ingester.count(filepath.Join(dir, "image.png")))
}

func TestRun_InitialScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.csv"), []byte("c"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	ingester := newRecordingIngester()
	w, err := New(ingester, emptyRegistry{}, WithInitialScan(true))
	require.NoError(t, err)
	startWatcher(t, w, dir)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return ingester.count(filepath.Join(abs, "a.txt")) == 1 && ingester.count(filepath.Join(abs, "b.md")) == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.Zero(t, ingester.count(filepath.Join(abs, "c.csv")))
	assert.Zero(t, ingester.count(filepath.Join(abs, "sub.txt")))
}

func TestRun_EndToEndWithPipeline(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	chunker, err := chunking.New()
	require.NoError(t, err)
	pipeline, err := ingestion.NewPipeline(repos.Documents, repos.Index, chunker, filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	dir := t.TempDir()
	w, err := New(pipeline, repos.Documents, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	startWatcher(t, w, dir)

	path := filepath.Join(dir, "chapter1.md")
	require.NoError(t, os.WriteFile(path, []byte("# Chapter 1\n\nCells are the basic unit of life."), 0o644))

	ctx := context.Background()
	assert.Eventually(t, func() bool {
		n, err := repos.Index.Count(ctx)
		return err == nil && n > 0
	}, 3*time.Second, 20*time.Millisecond)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	doc, err := repos.Documents.FindBySourcePath(ctx, abs)
	require.NoError(t, err)
	assert.Equal(t, "chapter1.md", doc.Filename)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		n, err := repos.Index.Count(ctx)
		return err == nil && n == 0
	}, 3*time.Second, 20*time.Millisecond)

	_, err = repos.Documents.FindBySourcePath(ctx, abs)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
