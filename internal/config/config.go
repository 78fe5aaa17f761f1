// Package config provides configuration loading for nutrid.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the nutrid knowledge engine.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Search      SearchConfig      `koanf:"search"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Context     ContextConfig     `koanf:"context"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// EmbeddingsConfig controls embedding generation.
type EmbeddingsConfig struct {
	// BaseURL is the text-embeddings-inference endpoint. When empty, or
	// when APIKey is unset, the deterministic local embedder is used.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model identifier, informational only.
	Model string `koanf:"model"`

	// APIKey authenticates against the remote embedding service. An empty
	// key selects local embedding mode.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each remote embedding request.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit caps remote requests per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// MaxChars truncates input text before embedding.
	MaxChars int `koanf:"max_chars"`

	// VectorSize is the embedding dimension for both modes.
	VectorSize int `koanf:"vector_size"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "qdrant", "chromem", "memory", or "auto" for the
	// fallback chain.
	Provider string `koanf:"provider"`

	Qdrant  QdrantConfig  `koanf:"qdrant"`
	Chromem ChromemConfig `koanf:"chromem"`
}

// QdrantConfig configures the external qdrant backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     string `koanf:"api_key"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

// ChromemConfig configures the file-backed backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// SearchConfig controls similarity search defaults.
type SearchConfig struct {
	// TopK is the default result count.
	TopK int `koanf:"top_k"`

	// MinSimilarity is the relevance floor when remote embeddings are in
	// use.
	MinSimilarity float64 `koanf:"min_similarity"`

	// LocalMinSimilarity is the relevance floor for the local embedder,
	// whose scores run lower than a trained model's.
	LocalMinSimilarity float64 `koanf:"local_min_similarity"`
}

// IngestConfig controls the ingestion pipeline.
type IngestConfig struct {
	// BatchSize is the number of documents embedded and stored per batch.
	BatchSize int `koanf:"batch_size"`
}

// ContextConfig controls context assembly.
type ContextConfig struct {
	// MaxTokens is the default token budget for an assembled context.
	MaxTokens int `koanf:"max_tokens"`

	// GeneralTopK is the result count for the broad similarity search.
	GeneralTopK int `koanf:"general_top_k"`

	// FilteredTopK is the result count for each targeted search.
	FilteredTopK int `koanf:"filtered_top_k"`

	// MinChars is the smallest truncated fragment worth including.
	MinChars int `koanf:"min_chars"`
}

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 10 * time.Second
	}
	if cfg.Embeddings.MaxChars == 0 {
		cfg.Embeddings.MaxChars = 512
	}
	if cfg.Embeddings.VectorSize == 0 {
		cfg.Embeddings.VectorSize = 384
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "auto"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "nutrid_knowledge"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "nutrid_knowledge"
	}

	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Search.MinSimilarity == 0 {
		cfg.Search.MinSimilarity = 0.5
	}
	if cfg.Search.LocalMinSimilarity == 0 {
		cfg.Search.LocalMinSimilarity = 0.3
	}

	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 50
	}

	if cfg.Context.MaxTokens == 0 {
		cfg.Context.MaxTokens = 1024
	}
	if cfg.Context.GeneralTopK == 0 {
		cfg.Context.GeneralTopK = 3
	}
	if cfg.Context.FilteredTopK == 0 {
		cfg.Context.FilteredTopK = 3
	}
	if cfg.Context.MinChars == 0 {
		cfg.Context.MinChars = 100
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}

	if c.Embeddings.VectorSize <= 0 {
		return fmt.Errorf("embeddings.vector_size must be positive, got %d", c.Embeddings.VectorSize)
	}
	if c.Embeddings.Timeout < 0 {
		return fmt.Errorf("embeddings.timeout must not be negative")
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings.rate_limit must not be negative")
	}

	switch c.VectorStore.Provider {
	case "auto", "qdrant", "chromem", "memory":
	default:
		return fmt.Errorf("invalid vectorstore.provider %q", c.VectorStore.Provider)
	}
	if p := c.VectorStore.Qdrant.Port; p <= 0 || p > 65535 {
		return fmt.Errorf("invalid vectorstore.qdrant.port %d", p)
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if s := c.Search.MinSimilarity; s < 0 || s > 1 {
		return fmt.Errorf("search.min_similarity must be in [0,1], got %v", s)
	}
	if s := c.Search.LocalMinSimilarity; s < 0 || s > 1 {
		return fmt.Errorf("search.local_min_similarity must be in [0,1], got %v", s)
	}

	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}

	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("context.max_tokens must be positive, got %d", c.Context.MaxTokens)
	}
	if c.Context.GeneralTopK <= 0 || c.Context.FilteredTopK <= 0 {
		return fmt.Errorf("context top_k values must be positive")
	}

	return nil
}
