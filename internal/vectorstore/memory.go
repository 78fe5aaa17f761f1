package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemoryConfig holds configuration for the in-process store.
type MemoryConfig struct {
	// VectorSize is the expected embedding dimension. Default: 384.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *MemoryConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *MemoryConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// MemoryStore is the in-process Store backend: a map from document ID to
// StoredDocument behind a reader-writer lock, searched by linear cosine scan.
//
// Each query costs O(n*d) for n documents of dimension d, which is fine for
// corpora in the low thousands. Above that, use the qdrant backend.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]StoredDocument
	config MemoryConfig
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-process store. It cannot fail beyond
// config validation, which is what makes it the last link of the fallback
// chain.
func NewMemoryStore(config MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &MemoryStore{
		docs:   make(map[string]StoredDocument),
		config: config,
		logger: logger,
	}, nil
}

// Add upserts a single document.
func (s *MemoryStore) Add(_ context.Context, doc Document, embedding []float32) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if len(embedding) != s.config.VectorSize {
		return fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	doc.Metadata.Normalize()
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	s.mu.Lock()
	s.docs[doc.ID] = StoredDocument{Document: doc, Embedding: vec}
	s.mu.Unlock()
	return nil
}

// AddBatch upserts documents in submission order.
func (s *MemoryStore) AddBatch(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("%w: %d documents, %d embeddings", ErrBatchMismatch, len(docs), len(embeddings))
	}
	for i := range docs {
		if err := s.Add(ctx, docs[i], embeddings[i]); err != nil {
			return fmt.Errorf("document %q: %w", docs[i].ID, err)
		}
	}
	return nil
}

// Search scans every stored document, admits those matching the filter with
// similarity >= minSimilarity, and returns the topK ordered by similarity
// descending then ID ascending.
func (s *MemoryStore) Search(_ context.Context, query []float32, topK int, filter *Filter, minSimilarity float32) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(query) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d, store expects %d", ErrDimensionMismatch, len(query), s.config.VectorSize)
	}

	s.mu.RLock()
	admitted := make([]SearchResult, 0, topK)
	for _, stored := range s.docs {
		if !filter.Matches(stored.Metadata) {
			continue
		}
		sim := CosineSimilarity(query, stored.Embedding)
		if sim < minSimilarity {
			continue
		}
		admitted = append(admitted, SearchResult{Document: stored.Document, Similarity: sim})
	}
	s.mu.RUnlock()

	sortResults(admitted)
	if len(admitted) > topK {
		admitted = admitted[:topK]
	}
	return admitted, nil
}

// Delete removes a document by ID. Absent IDs are a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	return nil
}

// Clear removes every document.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.docs = make(map[string]StoredDocument)
	s.mu.Unlock()
	return nil
}

// Stats reports the document count.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	n := len(s.docs)
	s.mu.RUnlock()
	return Stats{Count: n}, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
