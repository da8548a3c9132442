package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails; no partial result is returned.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a completion for a fully built prompt.
// Implementations must be thread-safe for concurrent use and must not retry
// internally; callers own timeouts and retries.
type Generator interface {
	// Generate sends prompt to the language model and returns its text reply.
	// Errors carry the backend's status signal (HTTP status code or message)
	// so that callers can classify rate limiting and authentication failures.
	Generate(ctx context.Context, prompt string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the language model, or nil when no credentials are configured.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
