package vectorstore

import (
	"sort"
	"strings"
	"time"
)

// DocType classifies a knowledge document.
type DocType string

const (
	TypeFact           DocType = "fact"
	TypeCatalogItem    DocType = "catalog_item"
	TypeRecipe         DocType = "recipe"
	TypeReference      DocType = "reference"
	TypeSupplementInfo DocType = "supplement_info"
	TypePlan           DocType = "plan"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case TypeFact, TypeCatalogItem, TypeRecipe, TypeReference, TypeSupplementInfo, TypePlan:
		return true
	}
	return false
}

// Difficulty grades recipes and plans.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Credibility score bounds. Every stored document carries a score in this range.
const (
	CredibilityMin = 0.3
	CredibilityMax = 1.0
)

// ClampCredibility forces v into [CredibilityMin, CredibilityMax].
func ClampCredibility(v float64) float64 {
	if v < CredibilityMin {
		return CredibilityMin
	}
	if v > CredibilityMax {
		return CredibilityMax
	}
	return v
}

// Macros holds macronutrient breakdown in grams.
type Macros struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// Metadata describes a document for filtering and ranking.
type Metadata struct {
	Type             DocType    `json:"type"`
	Title            string     `json:"title"`
	Source           string     `json:"source"`
	Tags             []string   `json:"tags,omitempty"`
	Calories         float64    `json:"calories,omitempty"`
	Macros           *Macros    `json:"macros,omitempty"`
	Difficulty       Difficulty `json:"difficulty,omitempty"`
	Goals            []string   `json:"goals,omitempty"`
	LastUpdated      time.Time  `json:"last_updated"`
	CredibilityScore float64    `json:"credibility_score"`
}

// Normalize trims tag and goal entries, drops empties, and clamps the
// credibility score. Called on every write path so stored metadata always
// satisfies the invariants.
func (m *Metadata) Normalize() {
	m.Tags = trimSet(m.Tags)
	m.Goals = trimSet(m.Goals)
	m.CredibilityScore = ClampCredibility(m.CredibilityScore)
}

// trimSet always returns a fresh slice so stored metadata never aliases a
// caller's backing array.
func trimSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Document is a unit of indexed knowledge.
type Document struct {
	// ID is the globally unique, caller-assigned identifier.
	ID string `json:"id"`

	// Content is the canonicalized text blob that gets embedded.
	Content string `json:"content"`

	Metadata Metadata `json:"metadata"`
}

// Validate checks the invariants a document must satisfy before storage.
func (d *Document) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	if d.Content == "" {
		return ErrEmptyContent
	}
	if !d.Metadata.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// StoredDocument is a document plus its embedding, as held by a backend.
type StoredDocument struct {
	Document
	Embedding []float32
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// sortResults orders hits by similarity descending, ties broken by
// document ID ascending. Every backend applies it so rankings are
// stable regardless of the order the backend returned them in.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}

// Stats reports backend contents.
type Stats struct {
	Count int `json:"count"`
}
