package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
)

const defaultTopK = 5

// Retriever returns the chunks most relevant to a question.
type Retriever struct {
	index        storage.VectorQuerier
	defaultTopK  int
	minRelevance float32
	logger       *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "retriever")
		return nil
	}
}

// WithDefaultTopK sets the result count used when callers pass topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 {
			return fmt.Errorf("default top k must be positive, got %d", k)
		}
		r.defaultTopK = k
		return nil
	}
}

// WithMinRelevance drops results whose relevance score is below min.
// Zero disables the filter. When every match is dropped, Retrieve returns
// ErrNoRelevantResults so callers can tell this apart from an empty corpus.
func WithMinRelevance(min float32) Option {
	return func(r *Retriever) error {
		if min < -1 || min > 1 {
			return fmt.Errorf("min relevance must be within [-1, 1], got %v", min)
		}
		r.minRelevance = min
		return nil
	}
}

// New creates a new retriever over index.
func New(index storage.VectorQuerier, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}

	r := &Retriever{
		index:       index,
		defaultTopK: defaultTopK,
		logger:      slog.Default().With("component", "retriever"),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// DefaultTopK returns the result count used for topK <= 0.
func (r *Retriever) DefaultTopK() int {
	return r.defaultTopK
}

// Retrieve returns up to topK results ranked by the index.
// An empty corpus yields an empty, non-nil slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, question, topK, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, question string, topK int, monitor Monitor) ([]core.RetrievalResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	monitor.Start(question, topK)

	raw, err := r.index.Query(ctx, question, topK)
	if err != nil {
		r.logger.Error("error querying index", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	monitor.AfterQuery(raw)

	results := make([]core.RetrievalResult, 0, len(raw))
	for _, res := range raw {
		if r.minRelevance != 0 && res.RelevanceScore < r.minRelevance {
			monitor.BelowThreshold(res)
			continue
		}
		results = append(results, res)
	}

	r.logger.Debug("retrieved chunks", "requested", topK, "returned", len(results))
	monitor.Finish(results)
	if len(results) == 0 && len(raw) > 0 {
		return results, ErrNoRelevantResults
	}
	return results, nil
}
