package embeddings_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellfoundry/nutrid/internal/embeddings"
	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

func TestLocalEmbedderDeterminism(t *testing.T) {
	e, err := embeddings.NewLocalEmbedder(384)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := e.EmbedQuery(ctx, "high protein breakfast with eggs")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "high protein breakfast with eggs")
	require.NoError(t, err)

	// Bit-identical, not merely close.
	assert.Equal(t, a, b)
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e, err := embeddings.NewLocalEmbedder(384)
	require.NoError(t, err)

	vec, err := e.EmbedQuery(context.Background(), "creatine dosage for muscle gain")
	require.NoError(t, err)
	require.Len(t, vec, 384)

	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestLocalEmbedderRelatedTextsScoreHigher(t *testing.T) {
	e, err := embeddings.NewLocalEmbedder(384)
	require.NoError(t, err)
	ctx := context.Background()

	query, err := e.EmbedQuery(ctx, "protein for muscle gain")
	require.NoError(t, err)
	related, err := e.EmbedQuery(ctx, "whey protein supports muscle growth")
	require.NoError(t, err)
	unrelated, err := e.EmbedQuery(ctx, "quarterly revenue projections spreadsheet")
	require.NoError(t, err)

	simRelated := vectorstore.CosineSimilarity(query, related)
	simUnrelated := vectorstore.CosineSimilarity(query, unrelated)
	assert.Greater(t, simRelated, simUnrelated)
}

func TestLocalEmbedderBatch(t *testing.T) {
	e, err := embeddings.NewLocalEmbedder(384)
	require.NoError(t, err)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"protein", "carbs", "fat"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.EmbedQuery(context.Background(), "carbs")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestLocalEmbedderDimensionTooSmall(t *testing.T) {
	_, err := embeddings.NewLocalEmbedder(8)
	assert.Error(t, err)
}
