package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/extract"
	"github.com/poiesic/studyrag/ingestion"
	"github.com/poiesic/studyrag/storage"
)

// DefaultDebounce is how long a path must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Ingester is the part of the ingestion pipeline the watcher drives.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*core.DocumentInfo, error)
	IngestFiles(ctx context.Context, paths []string) []ingestion.IngestResult
	Delete(ctx context.Context, id string) (bool, error)
}

// Registry finds documents by the path they were ingested from.
type Registry interface {
	FindBySourcePath(ctx context.Context, path string) (*core.DocumentInfo, error)
}

// Watcher ingests files as they appear in a directory.
type Watcher struct {
	ingester   Ingester
	registry   Registry
	extensions []string
	debounce   time.Duration
	initial    bool
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithExtensions restricts the watched extensions. Default is every
// extension the extractor supports.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) error {
		normalized := make([]string, 0, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			if !slices.Contains(extract.SupportedExtensions(), ext) {
				return fmt.Errorf("%w: %s", extract.ErrUnsupportedType, ext)
			}
			normalized = append(normalized, ext)
		}
		if len(normalized) > 0 {
			w.extensions = normalized
		}
		return nil
	}
}

// WithDebounce sets the quiet period before a changed file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) error {
		if d < 0 {
			return fmt.Errorf("debounce must not be negative, got %v", d)
		}
		w.debounce = d
		return nil
	}
}

// WithInitialScan ingests the files already in the directory when Run starts.
func WithInitialScan(enabled bool) Option {
	return func(w *Watcher) error {
		w.initial = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger.With("component", "watcher")
		return nil
	}
}

// New creates a watcher that feeds ingester and looks documents up in registry.
func New(ingester Ingester, registry Registry, opts ...Option) (*Watcher, error) {
	if ingester == nil {
		return nil, ErrIngesterRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	w := &Watcher{
		ingester:   ingester,
		registry:   registry,
		extensions: extract.SupportedExtensions(),
		debounce:   DefaultDebounce,
		logger:     slog.Default().With("component", "watcher"),
		pending:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run watches dir until ctx is done. Pending ingestions are allowed to finish
// before it returns.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching directory", "dir", dir, "extensions", w.extensions)

	if w.initial {
		w.scan(ctx, dir)
	}

	defer w.drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !w.watched(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
		w.remove(ctx, event.Name)
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok && timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
	w.pending[path] = timer
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// drain stops timers that have not fired and waits for running ingestions.
func (w *Watcher) drain() {
	w.mu.Lock()
	for path, timer := range w.pending {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	doc, err := w.ingester.IngestFile(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		w.logger.Error("failed to ingest file", "path", path, "err", err)
		return
	}
	w.logger.Info("ingested file", "path", path, "document_id", doc.ID, "chunks", doc.ChunkCount)
}

func (w *Watcher) remove(ctx context.Context, path string) {
	doc, err := w.registry.FindBySourcePath(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		w.logger.Error("failed to look up removed file", "path", path, "err", err)
		return
	}
	if _, err := w.ingester.Delete(ctx, doc.ID); err != nil {
		w.logger.Error("failed to delete document of removed file", "path", path, "document_id", doc.ID, "err", err)
		return
	}
	w.logger.Info("removed document of deleted file", "path", path, "document_id", doc.ID)
}

// scan ingests every watched file already present in dir.
func (w *Watcher) scan(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Error("initial scan failed", "dir", dir, "err", err)
		return
	}
	var paths []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.Type().IsRegular() && w.watched(path) {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return
	}
	for _, r := range w.ingester.IngestFiles(ctx, paths) {
		if r.Err != nil {
			w.logger.Error("failed to ingest file", "path", r.Path, "err", r.Err)
		}
	}
	w.logger.Info("initial scan complete", "files", len(paths))
}

func (w *Watcher) watched(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return slices.Contains(w.extensions, extract.Extension(path))
}
