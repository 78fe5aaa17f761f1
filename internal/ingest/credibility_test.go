package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		docType vectorstore.DocType
		want    float64
	}{
		{"research fact", "pubmed", vectorstore.TypeFact, 0.95},
		{"research reference boosted and clamped", "pubmed", vectorstore.TypeReference, 1.0},
		{"editorial recipe discounted", "editorial", vectorstore.TypeRecipe, 0.7},
		{"community plan", "community", vectorstore.TypePlan, 0.5},
		{"vendor catalog item", "vendor", vectorstore.TypeCatalogItem, 0.6},
		{"unknown source gets default", "randomblog", vectorstore.TypeFact, 0.6},
		{"source matching is case insensitive", "  USDA ", vectorstore.TypeFact, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.source, tt.docType), 1e-9)
		})
	}
}

func TestScoreNeverLeavesBounds(t *testing.T) {
	for source := range sourceReputation {
		for docType := range typeModifier {
			s := Score(source, docType)
			assert.GreaterOrEqual(t, s, vectorstore.CredibilityMin)
			assert.LessOrEqual(t, s, vectorstore.CredibilityMax)
		}
	}
}
