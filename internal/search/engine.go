// Package search runs similarity queries against the vector store.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/embeddings"
	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// Config controls search defaults.
type Config struct {
	// TopK is the default result count. Default: 5.
	TopK int

	// MinSimilarity is the relevance floor used in remote embedding mode.
	// Default: 0.5.
	MinSimilarity float32

	// LocalMinSimilarity is the floor used in local embedding mode, where
	// similarity scores run lower. Default: 0.3.
	LocalMinSimilarity float32
}

func (c *Config) applyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.5
	}
	if c.LocalMinSimilarity == 0 {
		c.LocalMinSimilarity = 0.3
	}
}

// Options adjusts a single search.
type Options struct {
	// TopK overrides the default result count when positive.
	TopK int

	// Filter restricts results by metadata. Nil matches everything.
	Filter *vectorstore.Filter

	// MinSimilarity overrides the mode-dependent floor when set.
	MinSimilarity *float32
}

// Engine embeds queries and searches the store.
type Engine struct {
	store    vectorstore.Store
	provider *embeddings.Provider
	config   Config
	logger   *zap.Logger
}

// New creates a search engine.
func New(store vectorstore.Store, provider *embeddings.Provider, config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.applyDefaults()
	return &Engine{store: store, provider: provider, config: config, logger: logger}
}

// DefaultMinSimilarity is the relevance floor for the active embedding mode.
func (e *Engine) DefaultMinSimilarity() float32 {
	if e.provider.Mode() == embeddings.ModeLocal {
		return e.config.LocalMinSimilarity
	}
	return e.config.MinSimilarity
}

// SearchSimilar embeds the query and returns the most similar documents,
// ordered by descending similarity.
func (e *Engine) SearchSimilar(ctx context.Context, query string, opts Options) ([]vectorstore.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.config.TopK
	}
	minSim := e.DefaultMinSimilarity()
	if opts.MinSimilarity != nil {
		minSim = *opts.MinSimilarity
	}

	start := time.Now()
	vec, err := e.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.store.Search(ctx, vec, topK, opts.Filter, minSim)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	e.logger.Debug("similarity search completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return results, nil
}

// SearchByType restricts a similarity search to a single document type.
func (e *Engine) SearchByType(ctx context.Context, query string, docType vectorstore.DocType, topK int) ([]vectorstore.SearchResult, error) {
	filter, err := vectorstore.NewFilter(vectorstore.Equals(vectorstore.FieldType, string(docType)))
	if err != nil {
		return nil, fmt.Errorf("building type filter: %w", err)
	}
	return e.SearchSimilar(ctx, query, Options{TopK: topK, Filter: filter})
}
