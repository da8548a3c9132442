package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/metrics"
	"github.com/poiesic/studyrag/retrieval"
	"github.com/poiesic/studyrag/storage"
)

const (
	defaultSourceLimit   = 3
	defaultExcerptLength = 200
	defaultAPIKeyEnv     = "STUDYRAG_API_KEY"

	emptyCorpusMessage = "I don't have any documents to search. Please upload some documents first."
	noRelevantMessage  = "I couldn't find anything in your documents relevant to that question. Try rephrasing it or uploading related material."
	rateLimitMessage   = "⚠️ API rate limit reached. Please wait a moment and try again."
)

// Retriever returns ranked chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]core.RetrievalResult, error)
}

// Orchestrator answers questions by retrieving context and conditioning the
// language model on it, then records the exchange in the conversation store.
type Orchestrator struct {
	retriever     Retriever
	generator     ai.Generator
	conversations storage.ConversationRepository
	topK          int
	sourceLimit   int
	excerptLength int
	apiKeyEnv     string
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger.With("component", "orchestrator")
		return nil
	}
}

// WithTopK sets how many chunks are retrieved per question.
// Zero leaves the choice to the retriever.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k < 0 {
			return fmt.Errorf("top k must not be negative, got %d", k)
		}
		o.topK = k
		return nil
	}
}

// WithSourceLimit sets how many cited sources an answer carries. Default 3.
func WithSourceLimit(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return fmt.Errorf("source limit must not be negative, got %d", n)
		}
		o.sourceLimit = n
		return nil
	}
}

// WithAPIKeyEnv names the environment variable shown in credential warnings.
func WithAPIKeyEnv(name string) Option {
	return func(o *Orchestrator) error {
		if name != "" {
			o.apiKeyEnv = name
		}
		return nil
	}
}

// NewOrchestrator creates an orchestrator. generator may be nil, in which
// case every question is answered with a configuration warning.
func NewOrchestrator(
	retriever Retriever,
	generator ai.Generator,
	conversations storage.ConversationRepository,
	opts ...Option,
) (*Orchestrator, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if conversations == nil {
		return nil, ErrConversationsRequired
	}

	o := &Orchestrator{
		retriever:     retriever,
		generator:     generator,
		conversations: conversations,
		sourceLimit:   defaultSourceLimit,
		excerptLength: defaultExcerptLength,
		apiKeyEnv:     defaultAPIKeyEnv,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        slog.Default().With("component", "orchestrator"),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Query answers question in the given mode. It never fails: every failure is
// reported as an answer whose Outcome names the state reached. History is
// written only when generation succeeds.
func (o *Orchestrator) Query(ctx context.Context, question string, mode core.Mode, conversationID string) *core.Answer {
	if !mode.Valid() {
		mode = core.ModeQA
	}
	if conversationID == "" {
		conversationID = core.NewShortID()
	}

	answer := &core.Answer{
		Sources:        []core.SourceChunk{},
		ConversationID: conversationID,
		Mode:           mode,
	}
	defer func() {
		metrics.AnswersTotal.WithLabelValues(string(mode), string(answer.Outcome)).Inc()
	}()

	logger := o.logger.With("conversation_id", conversationID, "mode", mode)

	if o.generator == nil {
		answer.Text = fmt.Sprintf("⚠️ Language model API key is not configured. Please add %s to your .env file.", o.apiKeyEnv)
		answer.Outcome = core.OutcomeNoModelConfigured
		return answer
	}

	results, err := o.retriever.Retrieve(ctx, question, o.topK)
	if errors.Is(err, retrieval.ErrNoRelevantResults) {
		logger.Debug("no chunk passed the relevance filter")
		answer.Text = noRelevantMessage
		answer.Outcome = core.OutcomeNoRelevantResults
		return answer
	}
	if err != nil {
		logger.Error("retrieval failed", "err", err)
		answer.Text = fmt.Sprintf("⚠️ Error searching documents: %v", err)
		answer.Outcome = core.OutcomeRetrievalError
		return answer
	}

	if len(results) == 0 {
		answer.Text = emptyCorpusMessage
		answer.Outcome = core.OutcomeEmptyCorpus
		return answer
	}

	prompt := BuildPrompt(mode, BuildContext(results), question)
	reply, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		class := ClassifyGenerationError(err)
		logger.Error("generation failed", "class", class, "err", err)
		answer.Text = o.generationMessage(class, err)
		answer.Outcome = core.OutcomeGenerationError
		return answer
	}

	answer.Text = reply
	answer.Sources = o.sources(results)
	answer.Outcome = core.OutcomeSuccess

	if err := ctx.Err(); err != nil {
		logger.Warn("context done before history write, skipping", "err", err)
		return answer
	}

	ts := o.now()
	user := core.Message{Role: core.RoleUser, Content: question, Timestamp: ts, Mode: mode}
	assistant := core.Message{Role: core.RoleAssistant, Content: reply, Timestamp: ts, Mode: mode}
	if err := o.conversations.Append(ctx, conversationID, user, assistant); err != nil {
		logger.Error("failed to save conversation history", "err", err)
	}

	return answer
}

func (o *Orchestrator) generationMessage(class GenerationErrorClass, err error) string {
	switch class {
	case ClassRateLimit:
		return rateLimitMessage
	case ClassAuth:
		return fmt.Sprintf("⚠️ Invalid API key. Please check your %s in the .env file.", o.apiKeyEnv)
	default:
		return fmt.Sprintf("⚠️ Error generating response: %v", err)
	}
}

func (o *Orchestrator) sources(results []core.RetrievalResult) []core.SourceChunk {
	n := min(len(results), o.sourceLimit)
	sources := make([]core.SourceChunk, n)
	for i := 0; i < n; i++ {
		r := results[i]
		document := r.Metadata.Filename
		if document == "" {
			document = "Unknown"
		}
		sources[i] = core.SourceChunk{
			Document:       document,
			Content:        excerpt(r.Content, o.excerptLength),
			RelevanceScore: r.RelevanceScore,
		}
	}
	return sources
}

// excerpt truncates s to limit characters and appends "..." when it was longer.
func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// History returns a conversation. The boolean is false when it does not exist.
func (o *Orchestrator) History(ctx context.Context, conversationID string) (*core.ConversationRecord, bool, error) {
	record, err := o.conversations.Get(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// DeleteHistory removes a conversation. The boolean is false when it did not exist.
func (o *Orchestrator) DeleteHistory(ctx context.Context, conversationID string) (bool, error) {
	return o.conversations.Delete(ctx, conversationID)
}

// Conversations lists stored conversations, most recently updated first.
func (o *Orchestrator) Conversations(ctx context.Context) ([]core.ConversationSummary, error) {
	return o.conversations.List(ctx)
}
