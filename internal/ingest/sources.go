// Package ingest loads nutrition records from record sources, scores their
// credibility, and writes them to the vector store in batches.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// Source yields documents ready for embedding and storage.
type Source interface {
	// Name identifies the source in logs and results.
	Name() string

	// Documents produces the source's records as store documents.
	Documents(ctx context.Context) ([]vectorstore.Document, error)
}

// NutritionFact is a single evidence-backed nutrition statement.
type NutritionFact struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Source  string    `json:"source"`
	Tags    []string  `json:"tags"`
	Goals   []string  `json:"goals"`
	Updated time.Time `json:"updated"`
}

// CatalogItem is a food or supplement catalog entry.
type CatalogItem struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Kind        string              `json:"kind"` // "food" or "supplement"
	Description string              `json:"description"`
	Source      string              `json:"source"`
	Calories    int                 `json:"calories"`
	Macros      *vectorstore.Macros `json:"macros,omitempty"`
	Tags        []string            `json:"tags"`
}

// Recipe is a preparable meal with nutrition totals.
type Recipe struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Instructions string              `json:"instructions"`
	Ingredients  []string            `json:"ingredients"`
	Source       string              `json:"source"`
	Calories     int                 `json:"calories"`
	Macros       *vectorstore.Macros `json:"macros,omitempty"`
	Difficulty   string              `json:"difficulty"`
	Tags         []string            `json:"tags"`
	Goals        []string            `json:"goals"`
}

// ReferenceArticle is a research summary or editorial reference.
type ReferenceArticle struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Summary string    `json:"summary"`
	Source  string    `json:"source"`
	Tags    []string  `json:"tags"`
	Updated time.Time `json:"updated"`
}

// MealPlan is a multi-day eating plan outline.
type MealPlan struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Source      string   `json:"source"`
	Goals       []string `json:"goals"`
	Tags        []string `json:"tags"`
}

// FactProvider supplies nutrition facts, typically from an upstream API or
// a local dataset.
type FactProvider interface {
	NutritionFacts(ctx context.Context) ([]NutritionFact, error)
}

// CatalogProvider supplies catalog items.
type CatalogProvider interface {
	CatalogItems(ctx context.Context) ([]CatalogItem, error)
}

// RecipeProvider supplies recipes.
type RecipeProvider interface {
	Recipes(ctx context.Context) ([]Recipe, error)
}

// ReferenceProvider supplies reference articles.
type ReferenceProvider interface {
	References(ctx context.Context) ([]ReferenceArticle, error)
}

// PlanProvider supplies meal plans.
type PlanProvider interface {
	MealPlans(ctx context.Context) ([]MealPlan, error)
}

// FactSource adapts a FactProvider into a Source.
type FactSource struct {
	Provider FactProvider
}

func (s FactSource) Name() string { return "facts" }

func (s FactSource) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	facts, err := s.Provider.NutritionFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching nutrition facts: %w", err)
	}
	docs := make([]vectorstore.Document, 0, len(facts))
	for _, f := range facts {
		docs = append(docs, vectorstore.Document{
			ID:      f.ID,
			Content: fmt.Sprintf("%s. %s", f.Title, f.Body),
			Metadata: vectorstore.Metadata{
				Type:             vectorstore.TypeFact,
				Title:            f.Title,
				Source:           f.Source,
				Tags:             f.Tags,
				Goals:            f.Goals,
				LastUpdated:      f.Updated,
				CredibilityScore: Score(f.Source, vectorstore.TypeFact),
			},
		})
	}
	return docs, nil
}

// CatalogSource adapts a CatalogProvider into a Source. Supplement entries
// are stored as supplement info documents, everything else as catalog items.
type CatalogSource struct {
	Provider CatalogProvider
}

func (s CatalogSource) Name() string { return "catalog" }

func (s CatalogSource) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	items, err := s.Provider.CatalogItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog items: %w", err)
	}
	docs := make([]vectorstore.Document, 0, len(items))
	for _, item := range items {
		docType := vectorstore.TypeCatalogItem
		if strings.EqualFold(item.Kind, "supplement") {
			docType = vectorstore.TypeSupplementInfo
		}
		docs = append(docs, vectorstore.Document{
			ID:      item.ID,
			Content: fmt.Sprintf("%s: %s", item.Name, item.Description),
			Metadata: vectorstore.Metadata{
				Type:             docType,
				Title:            item.Name,
				Source:           item.Source,
				Tags:             item.Tags,
				Calories:         float64(item.Calories),
				Macros:           item.Macros,
				CredibilityScore: Score(item.Source, docType),
			},
		})
	}
	return docs, nil
}

// RecipeSource adapts a RecipeProvider into a Source.
type RecipeSource struct {
	Provider RecipeProvider
}

func (s RecipeSource) Name() string { return "recipes" }

func (s RecipeSource) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	recipes, err := s.Provider.Recipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching recipes: %w", err)
	}
	docs := make([]vectorstore.Document, 0, len(recipes))
	for _, r := range recipes {
		content := fmt.Sprintf("%s. Ingredients: %s. %s",
			r.Title, strings.Join(r.Ingredients, ", "), r.Instructions)
		docs = append(docs, vectorstore.Document{
			ID:      r.ID,
			Content: content,
			Metadata: vectorstore.Metadata{
				Type:             vectorstore.TypeRecipe,
				Title:            r.Title,
				Source:           r.Source,
				Tags:             r.Tags,
				Goals:            r.Goals,
				Calories:         float64(r.Calories),
				Macros:           r.Macros,
				Difficulty:       vectorstore.Difficulty(r.Difficulty),
				CredibilityScore: Score(r.Source, vectorstore.TypeRecipe),
			},
		})
	}
	return docs, nil
}

// ReferenceSource adapts a ReferenceProvider into a Source.
type ReferenceSource struct {
	Provider ReferenceProvider
}

func (s ReferenceSource) Name() string { return "references" }

func (s ReferenceSource) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	refs, err := s.Provider.References(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching references: %w", err)
	}
	docs := make([]vectorstore.Document, 0, len(refs))
	for _, r := range refs {
		docs = append(docs, vectorstore.Document{
			ID:      r.ID,
			Content: fmt.Sprintf("%s. %s", r.Title, r.Summary),
			Metadata: vectorstore.Metadata{
				Type:             vectorstore.TypeReference,
				Title:            r.Title,
				Source:           r.Source,
				Tags:             r.Tags,
				LastUpdated:      r.Updated,
				CredibilityScore: Score(r.Source, vectorstore.TypeReference),
			},
		})
	}
	return docs, nil
}

// PlanSource adapts a PlanProvider into a Source.
type PlanSource struct {
	Provider PlanProvider
}

func (s PlanSource) Name() string { return "plans" }

func (s PlanSource) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	plans, err := s.Provider.MealPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching meal plans: %w", err)
	}
	docs := make([]vectorstore.Document, 0, len(plans))
	for _, p := range plans {
		docs = append(docs, vectorstore.Document{
			ID:      p.ID,
			Content: fmt.Sprintf("%s. %s", p.Title, p.Description),
			Metadata: vectorstore.Metadata{
				Type:             vectorstore.TypePlan,
				Title:            p.Title,
				Source:           p.Source,
				Tags:             p.Tags,
				Goals:            p.Goals,
				CredibilityScore: Score(p.Source, vectorstore.TypePlan),
			},
		})
	}
	return docs, nil
}
