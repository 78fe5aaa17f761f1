package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// vocabulary anchors domain terms to stable vector regions so related
// nutrition texts land near each other even without a trained model.
var vocabulary = []string{
	"protein", "carb", "carbohydrate", "fat", "calorie", "kcal",
	"fiber", "sugar", "sodium", "vitamin", "mineral", "iron",
	"calcium", "magnesium", "zinc", "potassium", "omega",
	"creatine", "whey", "casein", "supplement", "dose", "dosage",
	"recipe", "meal", "breakfast", "lunch", "dinner", "snack",
	"cook", "bake", "serving", "ingredient", "portion",
	"weight", "loss", "gain", "muscle", "bulk", "cut", "deficit",
	"surplus", "maintenance", "metabolism", "energy",
	"keto", "vegan", "vegetarian", "paleo", "macro",
}

// LocalEmbedder produces deterministic embeddings from token hashing over a
// nutrition vocabulary. Identical input always yields a bit-identical,
// L2-normalized vector. It has no failure modes and serves as the fallback
// when no remote embedding service is configured or reachable.
type LocalEmbedder struct {
	dim    int
	stride int
}

// NewLocalEmbedder creates a local embedder with the given dimension.
func NewLocalEmbedder(dim int) (*LocalEmbedder, error) {
	if dim < len(vocabulary) {
		return nil, fmt.Errorf("dimension %d too small, need at least %d", dim, len(vocabulary))
	}
	return &LocalEmbedder{dim: dim, stride: dim / len(vocabulary)}, nil
}

// Dimension returns the embedding dimension.
func (e *LocalEmbedder) Dimension() int {
	return e.dim
}

// EmbedQuery embeds a single text.
func (e *LocalEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// EmbedDocuments embeds a batch of texts.
func (e *LocalEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, token := range tokenize(text) {
		if idx, ok := vocabIndex[token]; ok {
			center := (idx * e.stride) % e.dim
			vec[center] += 1.0
			vec[(center+1)%e.dim] += 0.5
			vec[(center-1+e.dim)%e.dim] += 0.5
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim] += 0.25
	}
	return vectorstore.Normalize(vec)
}

var vocabIndex = func() map[string]int {
	m := make(map[string]int, len(vocabulary))
	for i, w := range vocabulary {
		m[w] = i
	}
	return m
}()

// tokenize lowercases, strips punctuation, and drops tokens shorter than
// three runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
