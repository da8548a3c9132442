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

package studyrag

import (
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/ai/openai"
	"github.com/poiesic/studyrag/answer"
	"github.com/poiesic/studyrag/chunking"
	"github.com/poiesic/studyrag/config"
	"github.com/poiesic/studyrag/ingestion"
	"github.com/poiesic/studyrag/reembed"
	"github.com/poiesic/studyrag/retrieval"
	"github.com/poiesic/studyrag/storage"
	"github.com/poiesic/studyrag/storage/badger"
	"github.com/poiesic/studyrag/storage/redis"
	"github.com/poiesic/studyrag/watch"
)

// Assistant wires storage, AI services and the answering pipeline together.
type Assistant struct {
	config        *config.AppConfig
	repos         *badger.Repositories
	conversations storage.ConversationRepository
	closeConv     func() error
	provider      ai.AIProvider
	retriever     *retrieval.Retriever
	orchestrator  *answer.Orchestrator
	pipeline      *ingestion.Pipeline
	logger        *slog.Logger
}

// AssistantOption configures an Assistant.
type AssistantOption func(*assistantOptions)

type assistantOptions struct {
	provider ai.AIProvider
	inMemory bool
	logger   *slog.Logger
}

// WithProvider supplies the AI provider instead of building one from the config.
func WithProvider(p ai.AIProvider) AssistantOption {
	return func(o *assistantOptions) {
		o.provider = p
	}
}

// WithInMemoryStorage opens a throwaway in-memory database.
func WithInMemoryStorage() AssistantOption {
	return func(o *assistantOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) AssistantOption {
	return func(o *assistantOptions) {
		o.logger = logger
	}
}

// NewAssistant opens the database under cfg.Data.Dir and builds every component.
func NewAssistant(cfg *config.AppConfig, opts ...AssistantOption) (*Assistant, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &assistantOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assistant{config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(cfg.ProviderConfig())
		if err != nil {
			return nil, err
		}
	}
	a.provider = provider

	dbPath := cfg.DatabaseDir()
	if options.inMemory {
		dbPath = ""
	}
	repos, err := badger.OpenRepositories(dbPath, options.inMemory, provider.Embedder(),
		badger.WithDefaultTopK(cfg.Retrieval.TopK),
		badger.WithIndexLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.repos = repos

	a.conversations = repos.Conversations
	if cfg.Conversations.Backend == config.ConversationsRedis {
		rc := cfg.Conversations.Redis
		store, err := redis.NewConversationRepository(redis.Config{
			Addrs:     rc.Addrs,
			Username:  rc.Username,
			Password:  rc.Password(),
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.conversations = store
		a.closeConv = store.Close
	}

	a.retriever, err = retrieval.New(repos.Index,
		retrieval.WithDefaultTopK(cfg.Retrieval.TopK),
		retrieval.WithMinRelevance(cfg.Retrieval.MinRelevance),
		retrieval.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = answer.NewOrchestrator(a.retriever, provider.Generator(), a.conversations,
		answer.WithTopK(cfg.Retrieval.TopK),
		answer.WithAPIKeyEnv(cfg.AI.APIKeyEnv),
		answer.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	chunker, err := chunking.New(
		chunking.WithChunkSize(cfg.Chunking.Size),
		chunking.WithChunkOverlap(cfg.Chunking.Overlap),
		chunking.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a.pipeline, err = ingestion.NewPipeline(repos.Documents, repos.Index, chunker, cfg.UploadDir(),
		ingestion.WithPoolSize(cfg.Ingest.PoolSize),
		ingestion.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Close releases the worker pool, the AI provider and storage.
func (a *Assistant) Close() error {
	var errs []error
	if a.pipeline != nil {
		a.pipeline.Release()
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Error("error closing AI provider", "err", err)
		}
	}
	if a.closeConv != nil {
		if err := a.closeConv(); err != nil {
			a.logger.Error("error closing conversation store", "err", err)
			errs = append(errs, err)
		}
	}
	if a.repos != nil {
		if err := a.repos.Close(); err != nil {
			a.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the assistant was built from.
func (a *Assistant) Config() *config.AppConfig { return a.config }

// Orchestrator answers questions.
func (a *Assistant) Orchestrator() *answer.Orchestrator { return a.orchestrator }

// Retriever ranks indexed chunks without generating an answer.
func (a *Assistant) Retriever() *retrieval.Retriever { return a.retriever }

// Pipeline ingests and deletes documents.
func (a *Assistant) Pipeline() *ingestion.Pipeline { return a.pipeline }

func (a *Assistant) Documents() storage.DocumentRepository { return a.repos.Documents }

func (a *Assistant) Index() storage.IndexRepository { return a.repos.Index }

func (a *Assistant) Conversations() storage.ConversationRepository { return a.conversations }

// ModelConfigured reports whether a language model is available for answering.
func (a *Assistant) ModelConfigured() bool { return a.provider.Generator() != nil }

// NewWatcher creates a directory watcher that feeds the ingestion pipeline.
func (a *Assistant) NewWatcher(opts ...watch.Option) (*watch.Watcher, error) {
	opts = append([]watch.Option{
		watch.WithDebounce(a.config.Ingest.Debounce),
		watch.WithLogger(a.logger),
	}, opts...)
	return watch.New(a.pipeline, a.repos.Documents, opts...)
}

// NewReembedder creates a re-embedder over the index using the current embedding model.
func (a *Assistant) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(a.repos.Index, a.provider.Embedder(), cfg, progress)
}
