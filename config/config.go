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

// Package config loads the studyrag YAML configuration file.
//
// A missing file yields defaults. Secrets are never stored in the file: the
// generation API key is read from the environment variable named by
// ai.api_key_env.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/chunking"
)

const (
	// DefaultAPIKeyEnv names the environment variable holding the generation API key.
	DefaultAPIKeyEnv = "STUDYRAG_API_KEY"

	// ConversationsBadger stores conversations in the embedded database.
	ConversationsBadger = "badger"
	// ConversationsRedis stores conversations in Redis.
	ConversationsRedis = "redis"
)

// DataConfig locates on-disk state.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkingConfig controls document splitting.
type ChunkingConfig struct {
	Size int `yaml:"size"`
	// Overlap of zero selects the default; a negative value disables overlap.
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig controls similarity search.
type RetrievalConfig struct {
	TopK         int     `yaml:"top_k"`
	MinRelevance float32 `yaml:"min_relevance"`
}

// AIConfig configures the embedding and generation services.
type AIConfig struct {
	EmbeddingHost   string  `yaml:"embedding_host"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	GenerationHost  string  `yaml:"generation_host"`
	GenerationModel string  `yaml:"generation_model"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	Temperature     float64 `yaml:"temperature"`
}

// RedisConfig contains connection details for the Redis conversation store.
type RedisConfig struct {
	Addrs       []string `yaml:"addrs"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	DB          int      `yaml:"db"`
	KeyPrefix   string   `yaml:"key_prefix"`
}

// ConversationsConfig selects the conversation store.
type ConversationsConfig struct {
	Backend string       `yaml:"backend"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
}

// IngestConfig configures bulk ingestion and the directory watcher.
type IngestConfig struct {
	PoolSize int           `yaml:"pool_size"`
	WatchDir string        `yaml:"watch_dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Data          DataConfig          `yaml:"data"`
	Chunking      ChunkingConfig      `yaml:"chunking"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	AI            AIConfig            `yaml:"ai"`
	Conversations ConversationsConfig `yaml:"conversations"`
	HTTP          HTTPConfig          `yaml:"http"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Load reads a config from path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = chunking.DefaultChunkSize
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = chunking.DefaultChunkOverlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	aiDefaults := ai.DefaultConfig()
	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if cfg.AI.GenerationHost == "" {
		cfg.AI.GenerationHost = aiDefaults.GenerationHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = aiDefaults.EmbeddingModel
	}
	if cfg.AI.GenerationModel == "" {
		cfg.AI.GenerationModel = aiDefaults.GenerationModel
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = aiDefaults.Temperature
	}

	if cfg.Conversations.Backend == "" {
		cfg.Conversations.Backend = ConversationsBadger
	}
	cfg.Conversations.Backend = strings.ToLower(cfg.Conversations.Backend)
	if cfg.Conversations.Backend == ConversationsRedis && cfg.Conversations.Redis == nil {
		cfg.Conversations.Redis = &RedisConfig{}
	}
	if r := cfg.Conversations.Redis; r != nil {
		if len(r.Addrs) == 0 {
			r.Addrs = []string{"localhost:6379"}
		}
		if r.KeyPrefix == "" {
			r.KeyPrefix = "studyrag"
		}
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 120 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxUploadMB == 0 {
		cfg.HTTP.MaxUploadMB = 50
	}

	if cfg.Ingest.PoolSize == 0 {
		cfg.Ingest.PoolSize = 4
	}
	if cfg.Ingest.Debounce == 0 {
		cfg.Ingest.Debounce = 500 * time.Millisecond
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate reports values that cannot be used.
func (c *AppConfig) Validate() error {
	if c.Chunking.Size < 1 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch c.Conversations.Backend {
	case ConversationsBadger, ConversationsRedis:
	default:
		return fmt.Errorf("conversations.backend must be %q or %q, got %q",
			ConversationsBadger, ConversationsRedis, c.Conversations.Backend)
	}
	if c.Ingest.PoolSize < 1 {
		return fmt.Errorf("ingest.pool_size must be positive, got %d", c.Ingest.PoolSize)
	}
	return nil
}

// APIKey returns the generation API key from the configured environment variable.
func (c *AppConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.AI.APIKeyEnv))
}

// ProviderConfig builds the provider configuration, resolving the API key from the environment.
func (c *AppConfig) ProviderConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.APIKey()),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// DatabaseDir is the directory holding the embedded database.
func (c *AppConfig) DatabaseDir() string {
	return filepath.Join(c.Data.Dir, "db")
}

// UploadDir is the directory holding original uploaded files.
func (c *AppConfig) UploadDir() string {
	return filepath.Join(c.Data.Dir, "uploads")
}

// Password returns the Redis password from the configured environment variable.
func (r *RedisConfig) Password() string {
	if r == nil || r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}
