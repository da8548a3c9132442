package openai

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local embedding servers do not check the token; "none" keeps the client happy.
	token := "none"
	if config.HasCredentials() && config.EmbeddingHost == config.GenerationHost {
		token = config.APIKey
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction. On error the
// returned interface is nil, not a nil *Embedder.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	e, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// EmbedText generates a vector embedding for a single text string.
// Queries go through EmbedQuery so that providers distinguishing query and
// document embeddings get the right variant.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	start := time.Now()
	vector, err := e.embedder.EmbedQuery(ctx, text)
	e.observe(start, 1, err)
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}

	return vector, nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	e.observe(start, len(texts), err)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	return vectors, nil
}

func (e *Embedder) observe(start time.Time, texts int, err error) {
	metrics.EmbeddingRequestDuration.WithLabelValues(e.model).Observe(time.Since(start).Seconds())
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.model, metrics.StatusLabel(err)).Inc()
	metrics.EmbeddedTextsTotal.WithLabelValues(e.model).Add(float64(texts))
}
