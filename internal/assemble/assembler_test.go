package assemble_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/assemble"
	"github.com/wellfoundry/nutrid/internal/embeddings"
	"github.com/wellfoundry/nutrid/internal/search"
	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

const testDim = 128

type fixture struct {
	assembler *assemble.Assembler
	store     *vectorstore.MemoryStore
	provider  *embeddings.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{VectorSize: testDim}, zap.NewNop())
	require.NoError(t, err)
	provider, err := embeddings.NewProvider(embeddings.Config{VectorSize: testDim}, zap.NewNop())
	require.NoError(t, err)
	engine := search.New(store, provider, search.Config{TopK: 5}, zap.NewNop())
	assembler := assemble.New(engine, assemble.Config{MinChars: 20}, zap.NewNop())
	return &fixture{assembler: assembler, store: store, provider: provider}
}

func (f *fixture) add(t *testing.T, id, content string, meta vectorstore.Metadata) {
	t.Helper()
	vec, err := f.provider.EmbedQuery(context.Background(), content)
	require.NoError(t, err)
	doc := vectorstore.Document{ID: id, Content: content, Metadata: meta}
	require.NoError(t, f.store.Add(context.Background(), doc, vec))
}

func TestBuildOrdersByCredibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// All three match the query; output order must follow credibility,
	// not similarity.
	f.add(t, "low", "protein helps muscle growth says a forum post", vectorstore.Metadata{
		Type: vectorstore.TypeFact, Title: "Forum tip", Source: "community", CredibilityScore: 0.6,
	})
	f.add(t, "high", "protein intake supports muscle growth in trials", vectorstore.Metadata{
		Type: vectorstore.TypeFact, Title: "Trial summary", Source: "pubmed", CredibilityScore: 0.95,
	})
	f.add(t, "mid", "protein and muscle growth overview", vectorstore.Metadata{
		Type: vectorstore.TypeFact, Title: "Overview", Source: "editorial", CredibilityScore: 0.8,
	})

	block, err := f.assembler.Build(ctx, "protein muscle growth", assemble.Hints{}, 4096)
	require.NoError(t, err)
	require.NotEmpty(t, block)

	posHigh := strings.Index(block, "Trial summary")
	posMid := strings.Index(block, "Overview")
	posLow := strings.Index(block, "Forum tip")
	require.GreaterOrEqual(t, posHigh, 0)
	require.GreaterOrEqual(t, posMid, 0)
	require.GreaterOrEqual(t, posLow, 0)
	assert.Less(t, posHigh, posMid)
	assert.Less(t, posMid, posLow)
}

func TestBuildRespectsTokenBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := strings.Repeat("protein muscle growth training adaptation ", 40)
	f.add(t, "long", long, vectorstore.Metadata{
		Type: vectorstore.TypeFact, Title: "Long", Source: "pubmed", CredibilityScore: 0.95,
	})

	budget := 50
	block, err := f.assembler.Build(ctx, "protein muscle growth", assemble.Hints{}, budget)
	require.NoError(t, err)
	require.NotEmpty(t, block)
	// Rough check: a truncated block plus the ellipsis never exceeds the
	// budget in estimated tokens by more than one block's rounding.
	assert.LessOrEqual(t, len(block), budget*4+8)
	assert.True(t, strings.HasSuffix(block, "..."))
}

func TestBuildDeduplicatesAcrossSearches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One recipe that both the general search and the keyword-triggered
	// recipe search will return.
	f.add(t, "recipe-1", "high protein omelette recipe for breakfast", vectorstore.Metadata{
		Type: vectorstore.TypeRecipe, Title: "Omelette", Source: "editorial", CredibilityScore: 0.7,
	})

	block, err := f.assembler.Build(ctx, "protein omelette recipe breakfast", assemble.Hints{}, 4096)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(block, "Omelette (recipe)"))
}

func TestBuildUsesGoalHints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, "plan-1", "weekly meal outline with plenty of vegetables", vectorstore.Metadata{
		Type: vectorstore.TypePlan, Title: "Cutting plan", Source: "editorial",
		Goals: []string{"cutting"}, CredibilityScore: 0.8,
	})

	// The general query shares no tokens with the plan; only the
	// goal-filtered search can surface it.
	blockWithout, err := f.assembler.Build(ctx, "creatine timing", assemble.Hints{}, 4096)
	require.NoError(t, err)
	assert.NotContains(t, blockWithout, "Cutting plan")

	blockWith, err := f.assembler.Build(ctx, "weekly meal outline vegetables", assemble.Hints{Goals: []string{"cutting"}}, 4096)
	require.NoError(t, err)
	assert.Contains(t, blockWith, "Cutting plan")
}

func TestBuildEmptyWhenNothingRelevant(t *testing.T) {
	f := newFixture(t)

	block, err := f.assembler.Build(context.Background(), "creatine dosing", assemble.Hints{}, 4096)
	require.NoError(t, err)
	assert.Empty(t, block)
}

func TestBuildRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.assembler.Build(context.Background(), "", assemble.Hints{}, 100)
	assert.Error(t, err)
}
