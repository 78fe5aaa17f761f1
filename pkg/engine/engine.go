// Package engine is the public entry point to the nutrid knowledge engine.
// It wires the embedding provider, vector store, search engine, context
// assembler, and ingestion pipeline behind one facade.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/assemble"
	"github.com/wellfoundry/nutrid/internal/config"
	"github.com/wellfoundry/nutrid/internal/embeddings"
	"github.com/wellfoundry/nutrid/internal/ingest"
	"github.com/wellfoundry/nutrid/internal/search"
	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// SearchResponse carries search results with timing.
type SearchResponse struct {
	Documents    []vectorstore.Document
	Scores       []float32
	SearchTimeMs int64
	TotalResults int
}

// Stats reports engine state.
type Stats struct {
	TotalDocuments int
	Backend        string
	EmbeddingMode  string
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	sources []ingest.Source
	store   vectorstore.Store
	backend vectorstore.Backend
}

// WithLogger supplies a logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSources registers ingestion sources.
func WithSources(sources ...ingest.Source) Option {
	return func(o *options) { o.sources = append(o.sources, sources...) }
}

// WithStore injects a pre-built store, bypassing the backend fallback chain.
// Intended for tests.
func WithStore(store vectorstore.Store, backend vectorstore.Backend) Option {
	return func(o *options) {
		o.store = store
		o.backend = backend
	}
}

// Engine is the nutrition knowledge retrieval engine.
type Engine struct {
	store     vectorstore.Store
	backend   vectorstore.Backend
	provider  *embeddings.Provider
	searcher  *search.Engine
	assembler *assemble.Assembler
	pipeline  *ingest.Pipeline
	logger    *zap.Logger
}

// New builds an engine from configuration. The vector store backend is
// chosen per cfg.VectorStore.Provider, walking the fallback chain on "auto".
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	provider, err := embeddings.NewProvider(embeddings.Config{
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Timeout:    cfg.Embeddings.Timeout,
		RateLimit:  cfg.Embeddings.RateLimit,
		MaxChars:   cfg.Embeddings.MaxChars,
		VectorSize: cfg.Embeddings.VectorSize,
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, backend := o.store, o.backend
	if store == nil {
		store, backend, err = vectorstore.Open(vectorstore.FactoryConfig{
			Provider: vectorstore.Backend(cfg.VectorStore.Provider),
			Qdrant: vectorstore.QdrantConfig{
				Host:       cfg.VectorStore.Qdrant.Host,
				Port:       cfg.VectorStore.Qdrant.Port,
				APIKey:     cfg.VectorStore.Qdrant.APIKey,
				Collection: cfg.VectorStore.Qdrant.Collection,
				VectorSize: cfg.Embeddings.VectorSize,
				UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			},
			Chromem: vectorstore.ChromemConfig{
				Path:       cfg.VectorStore.Chromem.Path,
				Compress:   cfg.VectorStore.Chromem.Compress,
				Collection: cfg.VectorStore.Chromem.Collection,
				VectorSize: cfg.Embeddings.VectorSize,
			},
			Memory: vectorstore.MemoryConfig{
				VectorSize: cfg.Embeddings.VectorSize,
			},
		}, o.logger)
		if err != nil {
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
	}

	searcher := search.New(store, provider, search.Config{
		TopK:               cfg.Search.TopK,
		MinSimilarity:      float32(cfg.Search.MinSimilarity),
		LocalMinSimilarity: float32(cfg.Search.LocalMinSimilarity),
	}, o.logger)

	assembler := assemble.New(searcher, assemble.Config{
		MaxTokens:    cfg.Context.MaxTokens,
		GeneralTopK:  cfg.Context.GeneralTopK,
		FilteredTopK: cfg.Context.FilteredTopK,
		MinChars:     cfg.Context.MinChars,
	}, o.logger)

	pipeline := ingest.NewPipeline(store, provider, o.sources, cfg.Ingest.BatchSize, o.logger)

	o.logger.Info("engine initialized",
		zap.String("backend", string(backend)),
		zap.String("embedding_mode", string(provider.Mode())))

	return &Engine{
		store:     store,
		backend:   backend,
		provider:  provider,
		searcher:  searcher,
		assembler: assembler,
		pipeline:  pipeline,
		logger:    o.logger,
	}, nil
}

// IngestAll runs every registered source and reports the outcome.
func (e *Engine) IngestAll(ctx context.Context) ingest.Result {
	return e.pipeline.IngestAll(ctx)
}

// AddDocument embeds and stores a document, overwriting on ID collision.
func (e *Engine) AddDocument(ctx context.Context, doc vectorstore.Document) error {
	return e.pipeline.Upsert(ctx, []vectorstore.Document{doc})
}

// AddDocuments embeds and stores documents in batch.
func (e *Engine) AddDocuments(ctx context.Context, docs []vectorstore.Document) error {
	return e.pipeline.Upsert(ctx, docs)
}

// UpdateDocument re-embeds and overwrites an existing document.
func (e *Engine) UpdateDocument(ctx context.Context, doc vectorstore.Document) error {
	return e.pipeline.Upsert(ctx, []vectorstore.Document{doc})
}

// DeleteDocument removes a document by ID. Deleting an absent ID is a no-op.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	return e.pipeline.Delete(ctx, id)
}

// SearchSimilar returns the documents most similar to the query.
func (e *Engine) SearchSimilar(ctx context.Context, query string, opts search.Options) (*SearchResponse, error) {
	start := time.Now()
	results, err := e.searcher.SearchSimilar(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{
		Documents:    make([]vectorstore.Document, len(results)),
		Scores:       make([]float32, len(results)),
		SearchTimeMs: time.Since(start).Milliseconds(),
		TotalResults: len(results),
	}
	for i, r := range results {
		resp.Documents[i] = r.Document
		resp.Scores[i] = r.Similarity
	}
	return resp, nil
}

// SearchByType restricts a search to one document type.
func (e *Engine) SearchByType(ctx context.Context, query string, docType vectorstore.DocType, topK int) (*SearchResponse, error) {
	filter, err := vectorstore.NewFilter(vectorstore.Equals(vectorstore.FieldType, string(docType)))
	if err != nil {
		return nil, err
	}
	return e.SearchSimilar(ctx, query, search.Options{TopK: topK, Filter: filter})
}

// RelevantContext assembles a credibility-ordered, token-budgeted context
// block for the query. Returns "" when nothing relevant is stored.
func (e *Engine) RelevantContext(ctx context.Context, query string, hints assemble.Hints, maxTokens int) (string, error) {
	return e.assembler.Build(ctx, query, hints, maxTokens)
}

// Stats reports document count, active backend, and embedding mode.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	s, err := e.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("reading store stats: %w", err)
	}
	return Stats{
		TotalDocuments: s.Count,
		Backend:        string(e.backend),
		EmbeddingMode:  string(e.provider.Mode()),
	}, nil
}

// Close releases the vector store.
func (e *Engine) Close() error {
	return e.store.Close()
}
