package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("nutrid.vectorstore.chromem")

// metadataKey is the chromem payload key carrying the full metadata as JSON.
// Scalar fields are additionally flattened into their own keys so chromem's
// exact-match `where` filtering can use them.
const metadataKey = "meta"

// inOverfetchFactor widens topK before post-filtering set-membership
// conditions, which chromem cannot evaluate natively.
const inOverfetchFactor = 4

// ChromemConfig holds configuration for the file-backed chromem store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/nutrid/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name. Default: "nutrid_knowledge"
	Collection string

	// VectorSize is the expected embedding dimension. Default: 384.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/nutrid/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "nutrid_knowledge"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is the file-backed Store backend on chromem-go, an embeddable
// vector database with no external service dependency. It is the middle link
// of the fallback chain: durable across restarts, reachable without a
// network.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore opens (or creates) the persistent database at the
// configured path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	store := &ChromemStore{db: db, config: config, logger: logger}

	// Materialize the collection up front so init failures surface here,
	// where the fallback chain can still react.
	if _, err := store.collection(); err != nil {
		return nil, err
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize))

	return store, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// rejectEmbeddingFunc guards against chromem silently computing embeddings.
// All vectors are precomputed by the engine's provider; chromem must never
// embed on its own (passing nil would install its OpenAI default).
func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings are precomputed; chromem must not embed")
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", s.config.Collection, err)
	}
	return col, nil
}

// Add upserts a single document.
func (s *ChromemStore) Add(ctx context.Context, doc Document, embedding []float32) error {
	return s.AddBatch(ctx, []Document{doc}, [][]float32{embedding})
}

// AddBatch upserts documents in submission order. chromem's AddDocuments
// replaces documents with colliding IDs, which gives upsert semantics for
// free.
func (s *ChromemStore) AddBatch(ctx context.Context, docs []Document, embeddings [][]float32) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) != len(embeddings) {
		return fmt.Errorf("%w: %d documents, %d embeddings", ErrBatchMismatch, len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i := range docs {
		doc := docs[i]
		if err := doc.Validate(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("document %q: %w", doc.ID, err)
		}
		if len(embeddings[i]) != s.config.VectorSize {
			return fmt.Errorf("document %q: %w: got %d, store expects %d",
				doc.ID, ErrDimensionMismatch, len(embeddings[i]), s.config.VectorSize)
		}
		doc.Metadata.Normalize()

		meta, err := encodeMetadata(doc.Metadata)
		if err != nil {
			return fmt.Errorf("document %q: encoding metadata: %w", doc.ID, err)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  meta,
			Embedding: embeddings[i],
		}
	}

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}
	// Concurrency 1: embeddings are already attached, nothing to parallelize.
	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents to chromem", zap.Int("count", len(docs)))
	return nil
}

// Search queries the collection with the precomputed embedding. Equality
// conditions translate to chromem's `where` map; membership conditions are
// applied afterwards over an over-fetched candidate set.
func (s *ChromemStore) Search(ctx context.Context, query []float32, topK int, filter *Filter, minSimilarity float32) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(query) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d, store expects %d", ErrDimensionMismatch, len(query), s.config.VectorSize)
	}

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}

	where, inConds := splitConditions(filter)
	fetch := topK
	if len(inConds) > 0 {
		fetch = topK * inOverfetchFactor
	}
	// chromem requires nResults <= document count.
	if fetch > count {
		fetch = count
	}

	hits, err := col.QueryEmbedding(ctx, query, fetch, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < minSimilarity {
			continue
		}
		meta, err := decodeMetadata(hit.Metadata)
		if err != nil {
			s.logger.Warn("skipping document with undecodable metadata",
				zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		if !matchesInConds(inConds, meta) {
			continue
		}
		results = append(results, SearchResult{
			Document:   Document{ID: hit.ID, Content: hit.Content, Metadata: meta},
			Similarity: hit.Similarity,
		})
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Delete removes a document by ID; absent IDs are a no-op.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	if id == "" {
		return ErrMissingID
	}
	col, err := s.collection()
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Clear drops and recreates the collection.
func (s *ChromemStore) Clear(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Clear")
	defer span.End()

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	if _, err := s.collection(); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("cleared chromem collection", zap.String("collection", s.config.Collection))
	return nil
}

// Stats reports the document count.
func (s *ChromemStore) Stats(ctx context.Context) (Stats, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Stats")
	defer span.End()

	col, err := s.collection()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: col.Count()}, nil
}

// Close is a no-op: chromem persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Debug("chromem store closed")
	return nil
}

// splitConditions partitions filter conditions into chromem-native equality
// filters and membership conditions needing post-filtering.
func splitConditions(filter *Filter) (where map[string]string, inConds []Condition) {
	for _, c := range filter.Conditions() {
		switch c.Kind {
		case CondEquals:
			if where == nil {
				where = make(map[string]string)
			}
			where[string(c.Field)] = c.Value
		case CondIn:
			inConds = append(inConds, c)
		}
	}
	return where, inConds
}

func matchesInConds(conds []Condition, m Metadata) bool {
	for _, c := range conds {
		if !matchCondition(c, m) {
			return false
		}
	}
	return true
}

// encodeMetadata stores the full metadata as JSON under metadataKey and
// flattens the scalar fields so chromem `where` filtering can match them.
func encodeMetadata(m Metadata) (map[string]string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		metadataKey:         string(raw),
		string(FieldType):   string(m.Type),
		string(FieldSource): m.Source,
	}
	if m.Difficulty != "" {
		out[string(FieldDifficulty)] = string(m.Difficulty)
	}
	return out, nil
}

func decodeMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	blob, ok := raw[metadataKey]
	if !ok {
		return m, fmt.Errorf("metadata payload key %q missing", metadataKey)
	}
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return m, err
	}
	return m, nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
