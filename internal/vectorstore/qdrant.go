package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("nutrid.vectorstore.qdrant")

// pointIDNamespace derives deterministic qdrant point UUIDs from document
// IDs, so re-adding a document overwrites its previous point (upsert).
var pointIDNamespace = uuid.MustParse("8f1bbfc8-2f44-4aab-9d30-5f5f3fb2a7f1")

// QdrantConfig holds configuration for the external qdrant backend.
type QdrantConfig struct {
	// Host is the qdrant server hostname. Default: "localhost".
	Host string

	// Port is the qdrant gRPC port (not the HTTP REST port). Default: 6334.
	Port int

	// APIKey authenticates against a managed qdrant deployment. Optional.
	APIKey string

	// Collection is the collection for all documents.
	// Default: "nutrid_knowledge".
	Collection string

	// VectorSize is the embedding dimension. Default: 384.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt. Default: 1s.
	RetryBackoff time.Duration

	// HealthTimeout bounds the construction-time health check. Default: 5s.
	HealthTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "nutrid_knowledge"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// isTransient reports whether a gRPC error should be retried.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is the external Store backend over qdrant's native gRPC
// client. It is the preferred backend when a qdrant server is reachable: the
// construction-time health check decides whether the fallback chain moves on.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects to qdrant, health-checks the connection within
// config.HealthTimeout, and ensures the collection exists.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50 * 1024 * 1024),
				grpc.MaxCallSendMsgSize(50 * 1024 * 1024),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), config.HealthTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize))

	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// retry runs op with exponential backoff on transient gRPC failures.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		s.logger.Warn("qdrant operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// pointID derives the deterministic qdrant point ID for a document ID.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointIDNamespace, []byte(docID)).String())
}

// Add upserts a single document.
func (s *QdrantStore) Add(ctx context.Context, doc Document, embedding []float32) error {
	return s.AddBatch(ctx, []Document{doc}, [][]float32{embedding})
}

// AddBatch upserts documents in submission order via qdrant's native upsert.
func (s *QdrantStore) AddBatch(ctx context.Context, docs []Document, embeddings [][]float32) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddBatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	if len(docs) != len(embeddings) {
		return fmt.Errorf("%w: %d documents, %d embeddings", ErrBatchMismatch, len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
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

		payload, err := encodePayload(doc)
		if err != nil {
			return fmt.Errorf("document %q: encoding payload: %w", doc.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err := s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search queries the collection with the precomputed embedding. The filter
// translates to qdrant match conditions; minSimilarity maps onto the score
// threshold.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int, filter *Filter, minSimilarity float32) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(query) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d, store expects %d", ErrDimensionMismatch, len(query), s.config.VectorSize)
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildQdrantFilter(filter),
	}
	if minSimilarity > 0 {
		req.ScoreThreshold = qdrant.PtrOf(minSimilarity)
	}

	var points []*qdrant.ScoredPoint
	err := s.retry(ctx, "search", func() error {
		res, err := s.client.Query(ctx, req)
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		doc, err := decodePayload(p.Payload)
		if err != nil {
			s.logger.Warn("skipping point with undecodable payload", zap.Error(err))
			continue
		}
		results = append(results, SearchResult{Document: doc, Similarity: p.Score})
	}
	sortResults(results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Delete removes a document by ID; absent IDs are a no-op on the server.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	if id == "" {
		return ErrMissingID
	}
	err := s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointID(id)}},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Clear drops and recreates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Clear")
	defer span.End()

	err := s.retry(ctx, "clear", func() error {
		if err := s.client.DeleteCollection(ctx, s.config.Collection); err != nil {
			return err
		}
		return s.ensureCollection(ctx)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("clearing collection %s: %w", s.config.Collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Stats reports the exact point count.
func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Stats")
	defer span.End()

	var count uint64
	err := s.retry(ctx, "stats", func() error {
		info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
		if err != nil {
			return err
		}
		if info.PointsCount != nil {
			count = *info.PointsCount
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Stats{}, fmt.Errorf("counting collection %s: %w", s.config.Collection, err)
	}
	return Stats{Count: int(count)}, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// buildQdrantFilter translates a typed filter into qdrant match conditions.
// Equality matches the flattened scalar payload key; membership uses a
// keywords match against the list-valued payload key.
func buildQdrantFilter(filter *Filter) *qdrant.Filter {
	conds := filter.Conditions()
	if len(conds) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(conds))
	for _, c := range conds {
		switch c.Kind {
		case CondEquals:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: string(c.Field),
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: c.Value},
						},
					},
				},
			})
		case CondIn:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: string(c.Field),
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{
								Keywords: &qdrant.RepeatedStrings{Strings: c.Values},
							},
						},
					},
				},
			})
		}
	}
	return &qdrant.Filter{Must: must}
}

// encodePayload flattens a document into a qdrant payload: content and id,
// the full metadata as JSON, scalar fields for keyword matching, and the
// set fields as list values for keywords matching.
func encodePayload(doc Document) (map[string]*qdrant.Value, error) {
	raw, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, err
	}
	payload := map[string]*qdrant.Value{
		"id":          stringValue(doc.ID),
		"content":     stringValue(doc.Content),
		metadataKey:   stringValue(string(raw)),
		"credibility": {Kind: &qdrant.Value_DoubleValue{DoubleValue: doc.Metadata.CredibilityScore}},
	}
	payload[string(FieldType)] = stringValue(string(doc.Metadata.Type))
	payload[string(FieldSource)] = stringValue(doc.Metadata.Source)
	payload[string(FieldDifficulty)] = stringValue(string(doc.Metadata.Difficulty))
	payload[string(FieldTags)] = listValue(doc.Metadata.Tags)
	payload[string(FieldGoals)] = listValue(doc.Metadata.Goals)
	return payload, nil
}

func decodePayload(payload map[string]*qdrant.Value) (Document, error) {
	var doc Document
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				return sv.StringValue
			}
		}
		return ""
	}
	doc.ID = get("id")
	doc.Content = get("content")
	blob := get(metadataKey)
	if doc.ID == "" || blob == "" {
		return doc, fmt.Errorf("payload missing id or %s", metadataKey)
	}
	if err := json.Unmarshal([]byte(blob), &doc.Metadata); err != nil {
		return doc, fmt.Errorf("decoding metadata: %w", err)
	}
	return doc, nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func listValue(values []string) *qdrant.Value {
	items := make([]*qdrant.Value, len(values))
	for i, v := range values {
		items[i] = stringValue(v)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{
		ListValue: &qdrant.ListValue{Values: items},
	}}
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
