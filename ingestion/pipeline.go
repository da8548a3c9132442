// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/studyrag/chunking"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/extract"
	"github.com/poiesic/studyrag/metrics"
	"github.com/poiesic/studyrag/storage"
)

// Pipeline ingests documents into the registry and the vector index.
type Pipeline struct {
	documents storage.DocumentRepository
	index     storage.IndexRepository
	chunker   *chunking.Chunker
	uploadDir string
	pool      *ants.Pool
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size used by IngestFiles.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline storing uploads under uploadDir.
func NewPipeline(
	documents storage.DocumentRepository,
	index storage.IndexRepository,
	chunker *chunking.Chunker,
	uploadDir string,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRepositoryRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if uploadDir == "" {
		return nil, ErrUploadDirRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents: documents,
		index:     index,
		chunker:   chunker,
		uploadDir: uploadDir,
		pool:      pool,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Ingest stores, extracts, chunks and indexes one uploaded document.
// Only .pdf, .txt and .md files are accepted. On failure nothing of the
// document remains in the registry, the index or the upload directory.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*core.DocumentInfo, error) {
	return p.ingest(ctx, filename, data)
}

// IngestFile ingests a local file and remembers its path. A file that was
// ingested from the same path before replaces the earlier document once the
// new version is indexed; if ingestion fails the earlier document is kept.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*core.DocumentInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !extract.Supported(abs) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedType, filepath.Base(abs))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	previous, err := p.documents.FindBySourcePath(ctx, abs)
	switch {
	case err == nil:
		if previous.Checksum == core.ChecksumFromContent(data) {
			p.logger.Debug("file unchanged, skipping", "path", abs, "document_id", previous.ID)
			return previous, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		previous = nil
	default:
		return nil, err
	}

	// The path moves to the new version only once it is fully indexed.
	doc, err := p.ingest(ctx, filepath.Base(abs), data)
	if err != nil {
		return nil, err
	}
	doc.SourcePath = abs
	if err := p.documents.Save(ctx, doc); err != nil {
		p.discard(doc)
		return nil, err
	}

	if previous != nil {
		if _, err := p.Delete(ctx, previous.ID); err != nil {
			p.logger.Warn("failed to remove replaced document",
				"path", abs, "document_id", previous.ID, "replaced_by", doc.ID, "err", err)
		}
	}
	return doc, nil
}

// IngestResult reports the outcome of one file in a batch.
type IngestResult struct {
	Path     string
	Document *core.DocumentInfo
	Err      error
}

// IngestFiles ingests local files concurrently on the worker pool.
// Results are returned in the order of paths.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) []IngestResult {
	results := make([]IngestResult, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		results[i].Path = path
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i].Document, results[i].Err = p.IngestFile(ctx, path)
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			results[i].Err = err
		}
	}
	wg.Wait()
	return results
}

func (p *Pipeline) ingest(ctx context.Context, filename string, data []byte) (doc *core.DocumentInfo, err error) {
	defer func() {
		metrics.DocumentsIngestedTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()
	}()

	filename, err = cleanFilename(filename)
	if err != nil {
		return nil, err
	}
	if !extract.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedType, filename)
	}

	id := core.NewShortID()
	doc = &core.DocumentInfo{
		ID:         id,
		Filename:   filename,
		StoredAs:   id + "_" + filename,
		UploadedAt: p.now(),
		FileSize:   int64(len(data)),
		Checksum:   core.ChecksumFromContent(data),
	}
	logger := p.logger.With("document_id", id, "filename", filename)

	existing, err := p.documents.FindByChecksum(ctx, doc.Checksum)
	switch {
	case err == nil:
		logger.Warn("document content already uploaded", "duplicate_of", existing.ID)
		doc.DuplicateOf = existing.ID
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if err := p.writeUpload(doc.StoredAs, data); err != nil {
		return nil, err
	}
	if err := p.documents.Save(ctx, doc); err != nil {
		p.discard(doc)
		return nil, err
	}

	count, err := p.indexText(ctx, doc, data)
	if err != nil {
		logger.Error("ingestion failed", "err", err)
		p.discard(doc)
		return nil, err
	}

	if err := p.documents.UpdateChunkCount(ctx, id, count); err != nil {
		p.discard(doc)
		return nil, err
	}
	doc.ChunkCount = count

	logger.Info("document indexed", "chunks", count, "bytes", doc.FileSize)
	return doc, nil
}

// indexText extracts, chunks and indexes the document, returning the chunk count.
func (p *Pipeline) indexText(ctx context.Context, doc *core.DocumentInfo, data []byte) (int, error) {
	text, err := extract.Text(ctx, data, doc.Filename)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyDocument
	}

	chunks := p.chunker.Split(text, doc.ID, doc.Filename)
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}
	return p.index.Insert(ctx, doc.ID, chunks)
}

// discard removes every trace of a document whose ingestion failed.
// It uses its own context; the caller's may already be cancelled.
func (p *Pipeline) discard(doc *core.DocumentInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		p.logger.Warn("failed to remove vectors of failed document", "document_id", doc.ID, "err", err)
	}
	if _, err := p.documents.Delete(ctx, doc.ID); err != nil {
		p.logger.Warn("failed to remove registry entry of failed document", "document_id", doc.ID, "err", err)
	}
	if err := p.removeUpload(doc.StoredAs); err != nil {
		p.logger.Warn("failed to remove upload of failed document", "document_id", doc.ID, "err", err)
	}
}

// Delete removes a document's vectors, its stored upload and its registry
// entry. Returns false when the registry has no such document.
func (p *Pipeline) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := p.index.DeleteByDocument(ctx, id); err != nil {
		return false, fmt.Errorf("deleting vectors: %w", err)
	}

	doc, err := p.documents.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := p.removeUpload(doc.StoredAs); err != nil {
		p.logger.Warn("failed to remove stored upload", "document_id", id, "err", err)
	}
	deleted, err := p.documents.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	p.logger.Info("document deleted", "document_id", id, "filename", doc.Filename)
	return deleted, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
