package openai

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	model       string
	temperature float64
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// It fails with ai.ErrNoCredentials when no API key is configured.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.HasCredentials() {
		return nil, ai.ErrNoCredentials
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		model:       config.GenerationModel,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction. On error the
// returned interface is nil, not a nil *Generator.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	g, err := newGenerator(config)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Generate sends prompt as a single user message and returns the first choice.
// The call is made once; errors are returned as reported by the backend.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	metrics.GenerationRequestDuration.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
	metrics.GenerationRequestsTotal.WithLabelValues(g.model, metrics.StatusLabel(err)).Inc()
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}

	if len(response.Choices) < 1 {
		g.logger.Warn("no choices returned from model")
		return "", ai.ErrEmptyCompletion
	}

	g.logger.Debug("generated completion", "prompt_length", len(prompt), "answer_length", len(response.Choices[0].Content))
	return response.Choices[0].Content, nil
}
