package ingest

import (
	"strings"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// sourceReputation holds base credibility per known source. Unknown sources
// get defaultReputation.
var sourceReputation = map[string]float64{
	"usda":      0.95,
	"examine":   0.95,
	"pubmed":    0.95,
	"internal":  0.8,
	"editorial": 0.8,
	"vendor":    0.65,
	"community": 0.6,
}

const defaultReputation = 0.6

// typeModifier adjusts credibility by document type. Reference material is
// slightly boosted; user-authored content is discounted.
var typeModifier = map[vectorstore.DocType]float64{
	vectorstore.TypeReference:      0.05,
	vectorstore.TypeFact:           0,
	vectorstore.TypeSupplementInfo: 0,
	vectorstore.TypeCatalogItem:    -0.05,
	vectorstore.TypeRecipe:         -0.1,
	vectorstore.TypePlan:           -0.1,
}

// Score computes the credibility score for a document from its source
// reputation and type, clamped to the store's valid range.
func Score(source string, docType vectorstore.DocType) float64 {
	rep, ok := sourceReputation[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		rep = defaultReputation
	}
	return vectorstore.ClampCredibility(rep + typeModifier[docType])
}
