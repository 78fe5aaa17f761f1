// Package vectorstore persists (id, content, metadata, embedding) tuples and
// answers nearest-neighbor queries over them.
//
// Three backends implement the Store capability set: QdrantStore (external
// indexed database), ChromemStore (file-backed embedded database), and
// MemoryStore (in-process map, last-resort fallback and test double). Open
// evaluates the fallback chain qdrant -> chromem -> memory once and binds the
// first backend that initializes.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingID indicates a document without a caller-assigned ID.
	ErrMissingID = errors.New("document ID is required")

	// ErrEmptyContent indicates a document with no text content.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrInvalidType indicates an unknown document type.
	ErrInvalidType = errors.New("invalid document type")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the store's configured vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBatchMismatch indicates AddBatch called with unequal slice lengths.
	ErrBatchMismatch = errors.New("documents and embeddings length mismatch")

	// ErrConnectionFailed indicates the external backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector backend")

	// ErrInvalidFilter indicates a filter that does not validate against the
	// metadata schema.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Embedder generates vector embeddings from text.
//
// Implementations can call a remote embedding service or compute a
// deterministic local projection; either way the returned vectors must be
// L2-normalized and of a fixed dimension.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input,
	// preserving order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the capability set shared by all backends.
//
// Adding a document whose ID already exists is a full-replacement upsert.
// Delete is idempotent. Embeddings are supplied by the caller (the engine
// embeds before writing) and must match the store's configured dimension.
type Store interface {
	// Add upserts a single document with its embedding.
	Add(ctx context.Context, doc Document, embedding []float32) error

	// AddBatch upserts documents in submission order. docs[i] pairs with
	// embeddings[i].
	AddBatch(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns up to topK documents whose cosine similarity to the
	// query vector is at least minSimilarity and which satisfy the filter
	// (nil filter admits everything). Results are ordered by similarity
	// descending, ties broken by document ID ascending.
	Search(ctx context.Context, query []float32, topK int, filter *Filter, minSimilarity float32) ([]SearchResult, error)

	// Delete removes a document by ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string) error

	// Clear removes every document.
	Clear(ctx context.Context) error

	// Stats reports the number of stored documents.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}
