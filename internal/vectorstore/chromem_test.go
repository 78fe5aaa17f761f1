package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

func newTestChromemStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_knowledge",
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChromemStoreRoundTrip(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	doc := testDoc("fact-1", vectorstore.TypeFact)
	doc.Metadata.Tags = []string{"protein"}
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	results, err := store.Search(ctx, testEmbed(doc.Content), 5, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact-1", results[0].Document.ID)
	assert.Equal(t, doc.Content, results[0].Document.Content)
	assert.Equal(t, vectorstore.TypeFact, results[0].Document.Metadata.Type)
	assert.Equal(t, []string{"protein"}, results[0].Document.Metadata.Tags)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 1e-4)
}

func TestChromemStoreUpsert(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	doc := testDoc("fact-1", vectorstore.TypeFact)
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))
	doc.Content = "replaced content"
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestChromemStoreSearchEmpty(t *testing.T) {
	store := newTestChromemStore(t)

	results, err := store.Search(context.Background(), testEmbed("anything"), 5, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStoreFilter(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	fact := testDoc("fact-1", vectorstore.TypeFact)
	recipe := testDoc("recipe-1", vectorstore.TypeRecipe)
	recipe.Metadata.Goals = []string{"muscle_gain"}
	require.NoError(t, store.AddBatch(ctx,
		[]vectorstore.Document{fact, recipe},
		[][]float32{testEmbed(fact.Content), testEmbed(recipe.Content)}))

	t.Run("equals", func(t *testing.T) {
		filter := vectorstore.MustFilter(vectorstore.Equals(vectorstore.FieldType, "fact"))
		results, err := store.Search(ctx, testEmbed("anything"), 10, filter, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "fact-1", results[0].Document.ID)
	})

	t.Run("in", func(t *testing.T) {
		filter := vectorstore.MustFilter(vectorstore.In(vectorstore.FieldGoals, "muscle_gain"))
		results, err := store.Search(ctx, testEmbed("anything"), 10, filter, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "recipe-1", results[0].Document.ID)
	})
}

func TestChromemStoreDeleteAndClear(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		doc := testDoc(id, vectorstore.TypeFact)
		require.NoError(t, store.Add(ctx, doc, testEmbed(id)))
	}

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	require.NoError(t, store.Clear(ctx))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestChromemStorePersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := vectorstore.ChromemConfig{Path: dir, Collection: "test_knowledge", VectorSize: testVectorSize}
	ctx := context.Background()

	store, err := vectorstore.NewChromemStore(cfg, zap.NewNop())
	require.NoError(t, err)
	doc := testDoc("fact-1", vectorstore.TypeFact)
	require.NoError(t, store.Add(ctx, doc, testEmbed(doc.Content)))
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}
