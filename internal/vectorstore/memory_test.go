package vectorstore_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

const testVectorSize = 64

func newTestMemoryStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{VectorSize: testVectorSize}, zap.NewNop())
	require.NoError(t, err)
	return store
}

// testEmbed produces a deterministic unit vector from text, so related tests
// get stable similarities without a real embedding model.
func testEmbed(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, testVectorSize)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vectorstore.Normalize(vec)
}

func testDoc(id string, docType vectorstore.DocType) vectorstore.Document {
	return vectorstore.Document{
		ID:      id,
		Content: "content for " + id,
		Metadata: vectorstore.Metadata{
			Type:             docType,
			Title:            "Title " + id,
			Source:           "internal",
			CredibilityScore: 0.8,
		},
	}
}

func TestMemoryStoreAddAndSearch(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	doc := testDoc("fact-1", vectorstore.TypeFact)
	vec := testEmbed(doc.Content)
	require.NoError(t, store.Add(ctx, doc, vec))

	results, err := store.Search(ctx, vec, 5, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact-1", results[0].Document.ID)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 1e-4)
}

func TestMemoryStoreUpsert(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	doc := testDoc("fact-1", vectorstore.TypeFact)
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	doc.Content = "updated content"
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	results, err := store.Search(ctx, testEmbed("updated content"), 1, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated content", results[0].Document.Content)
}

func TestMemoryStoreValidation(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()
	vec := testEmbed("x")

	t.Run("missing ID", func(t *testing.T) {
		doc := testDoc("", vectorstore.TypeFact)
		assert.ErrorIs(t, store.Add(ctx, doc, vec), vectorstore.ErrMissingID)
	})

	t.Run("empty content", func(t *testing.T) {
		doc := testDoc("d1", vectorstore.TypeFact)
		doc.Content = ""
		assert.ErrorIs(t, store.Add(ctx, doc, vec), vectorstore.ErrEmptyContent)
	})

	t.Run("invalid type", func(t *testing.T) {
		doc := testDoc("d1", "bogus")
		assert.ErrorIs(t, store.Add(ctx, doc, vec), vectorstore.ErrInvalidType)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		doc := testDoc("d1", vectorstore.TypeFact)
		assert.ErrorIs(t, store.Add(ctx, doc, []float32{1, 2, 3}), vectorstore.ErrDimensionMismatch)
	})

	t.Run("batch length mismatch", func(t *testing.T) {
		docs := []vectorstore.Document{testDoc("d1", vectorstore.TypeFact)}
		assert.ErrorIs(t, store.AddBatch(ctx, docs, nil), vectorstore.ErrBatchMismatch)
	})
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	doc := testDoc("fact-1", vectorstore.TypeFact)
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	require.NoError(t, store.Delete(ctx, "fact-1"))
	require.NoError(t, store.Delete(ctx, "fact-1"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestMemoryStoreFilter(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	fact := testDoc("fact-1", vectorstore.TypeFact)
	recipe := testDoc("recipe-1", vectorstore.TypeRecipe)
	recipe.Metadata.Goals = []string{"muscle_gain", "bulking"}
	require.NoError(t, store.Add(ctx, fact, testEmbed(fact.Content)))
	require.NoError(t, store.Add(ctx, recipe, testEmbed(recipe.Content)))

	query := testEmbed("anything")

	t.Run("equals", func(t *testing.T) {
		filter, err := vectorstore.NewFilter(vectorstore.Equals(vectorstore.FieldType, "recipe"))
		require.NoError(t, err)
		results, err := store.Search(ctx, query, 10, filter, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "recipe-1", results[0].Document.ID)
	})

	t.Run("in matches on intersection", func(t *testing.T) {
		filter, err := vectorstore.NewFilter(vectorstore.In(vectorstore.FieldGoals, "muscle_gain", "cutting"))
		require.NoError(t, err)
		results, err := store.Search(ctx, query, 10, filter, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "recipe-1", results[0].Document.ID)
	})

	t.Run("in with no overlap matches nothing", func(t *testing.T) {
		filter, err := vectorstore.NewFilter(vectorstore.In(vectorstore.FieldGoals, "endurance"))
		require.NoError(t, err)
		results, err := store.Search(ctx, query, 10, filter, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMemoryStoreSearchOrdering(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	query := testEmbed("query text")

	// Same embedding for b and a forces the ID tie-break.
	for _, id := range []string{"doc-b", "doc-a"} {
		doc := testDoc(id, vectorstore.TypeFact)
		require.NoError(t, store.Add(ctx, doc, query))
	}
	far := testDoc("doc-far", vectorstore.TypeFact)
	require.NoError(t, store.Add(ctx, far, testEmbed("something else entirely")))

	results, err := store.Search(ctx, query, 10, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "doc-a", results[0].Document.ID)
	assert.Equal(t, "doc-b", results[1].Document.ID)
	assert.Equal(t, "doc-far", results[2].Document.ID)
}

func TestMemoryStoreMinSimilarity(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	doc := testDoc("fact-1", vectorstore.TypeFact)
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	// A threshold above 1.0 excludes even an exact match.
	results, err := store.Search(ctx, testEmbed(doc.Content), 5, nil, 1.01)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreClear(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		doc := testDoc(id, vectorstore.TypeFact)
		require.NoError(t, store.Add(ctx, doc, testEmbed(id)))
	}
	require.NoError(t, store.Clear(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestAddDoesNotAliasCallerSlices(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	tags := []string{" protein ", "", "breakfast"}
	doc := testDoc("fact-1", vectorstore.TypeFact)
	doc.Metadata.Tags = tags
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	// The caller's slice is untouched by normalization.
	assert.Equal(t, []string{" protein ", "", "breakfast"}, tags)

	// Mutating the caller's slice after Add must not reach stored state.
	tags[0] = "mutated"
	results, err := store.Search(ctx, testEmbed(doc.Content), 1, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"protein", "breakfast"}, results[0].Document.Metadata.Tags)
}

func TestMetadataNormalize(t *testing.T) {
	m := vectorstore.Metadata{
		Type:             vectorstore.TypeFact,
		Tags:             []string{" protein ", "", "breakfast"},
		Goals:            []string{"  "},
		CredibilityScore: 1.7,
	}
	m.Normalize()
	assert.Equal(t, []string{"protein", "breakfast"}, m.Tags)
	assert.Nil(t, m.Goals)
	assert.Equal(t, vectorstore.CredibilityMax, m.CredibilityScore)

	m.CredibilityScore = -2
	m.Normalize()
	assert.Equal(t, vectorstore.CredibilityMin, m.CredibilityScore)
}
