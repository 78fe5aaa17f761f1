// Package assemble builds token-budgeted context blocks from the knowledge
// base for downstream prompt construction.
package assemble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/search"
	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// charsPerToken is the rough character-to-token ratio used for budgeting.
const charsPerToken = 4

// Hints carries user profile signals that steer auxiliary searches.
type Hints struct {
	// Goals restricts a targeted search to documents tagged with any of
	// the user's goals.
	Goals []string

	// Plan names the user's current plan, appended to the general query.
	Plan string

	// ActivityLevel is appended to the general query when set.
	ActivityLevel string
}

// Config controls assembly.
type Config struct {
	// MaxTokens is the default budget when Build is called with zero.
	MaxTokens int

	// GeneralTopK is the result count for the broad search.
	GeneralTopK int

	// FilteredTopK is the result count for each targeted search.
	FilteredTopK int

	// MinChars is the smallest truncated fragment worth including.
	MinChars int
}

func (c *Config) applyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.GeneralTopK == 0 {
		c.GeneralTopK = 3
	}
	if c.FilteredTopK == 0 {
		c.FilteredTopK = 3
	}
	if c.MinChars == 0 {
		c.MinChars = 100
	}
}

// typeTriggers maps query keywords to targeted document-type searches.
var typeTriggers = []struct {
	keywords []string
	docType  vectorstore.DocType
}{
	{[]string{"recipe", "meal", "cook"}, vectorstore.TypeRecipe},
	{[]string{"supplement", "vitamin"}, vectorstore.TypeSupplementInfo},
	{[]string{"calorie", "macro"}, vectorstore.TypeFact},
	{[]string{"research", "stud"}, vectorstore.TypeReference},
}

// Assembler fans a query out into several searches and packs the merged
// results into a credibility-ordered context string.
type Assembler struct {
	engine *search.Engine
	config Config
	logger *zap.Logger
}

// New creates an assembler over a search engine.
func New(engine *search.Engine, config Config, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.applyDefaults()
	return &Assembler{engine: engine, config: config, logger: logger}
}

// Build assembles a context block for the query within maxTokens. A zero
// budget uses the configured default. The broad search failing is an error;
// auxiliary searches are best-effort. Returns "" when no document qualifies.
func (a *Assembler) Build(ctx context.Context, query string, hints Hints, maxTokens int) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	if maxTokens <= 0 {
		maxTokens = a.config.MaxTokens
	}

	searches := a.planSearches(query, hints)

	type outcome struct {
		results []vectorstore.SearchResult
		err     error
	}
	outcomes := make([]outcome, len(searches))

	var wg sync.WaitGroup
	for i, s := range searches {
		wg.Add(1)
		go func(i int, s plannedSearch) {
			defer wg.Done()
			results, err := a.engine.SearchSimilar(ctx, s.query, s.opts)
			outcomes[i] = outcome{results: results, err: err}
		}(i, s)
	}
	wg.Wait()

	// The broad search is always planned first and is the one search the
	// assembled context cannot do without.
	if err := outcomes[0].err; err != nil {
		return "", fmt.Errorf("general search: %w", err)
	}

	merged := make([]vectorstore.SearchResult, 0, len(searches)*a.config.FilteredTopK)
	seen := make(map[string]bool)
	for i, o := range outcomes {
		if o.err != nil {
			a.logger.Warn("auxiliary search failed, skipping",
				zap.String("label", searches[i].label),
				zap.Error(o.err))
			continue
		}
		for _, r := range o.results {
			if seen[r.Document.ID] {
				continue
			}
			seen[r.Document.ID] = true
			merged = append(merged, r)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		ci := merged[i].Document.Metadata.CredibilityScore
		cj := merged[j].Document.Metadata.CredibilityScore
		if ci != cj {
			return ci > cj
		}
		return merged[i].Document.ID < merged[j].Document.ID
	})

	return a.pack(merged, maxTokens), nil
}

type plannedSearch struct {
	label string
	query string
	opts  search.Options
}

func (a *Assembler) planSearches(query string, hints Hints) []plannedSearch {
	general := query
	if hints.Plan != "" {
		general += " " + hints.Plan
	}
	if hints.ActivityLevel != "" {
		general += " " + hints.ActivityLevel
	}

	searches := []plannedSearch{{
		label: "general",
		query: general,
		opts:  search.Options{TopK: a.config.GeneralTopK},
	}}

	if len(hints.Goals) > 0 {
		if filter, err := vectorstore.NewFilter(vectorstore.In(vectorstore.FieldGoals, hints.Goals...)); err == nil {
			searches = append(searches, plannedSearch{
				label: "goals",
				query: query,
				opts:  search.Options{TopK: a.config.FilteredTopK, Filter: filter},
			})
		}
	}

	lower := strings.ToLower(query)
	for _, t := range typeTriggers {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				if filter, err := vectorstore.NewFilter(vectorstore.Equals(vectorstore.FieldType, string(t.docType))); err == nil {
					searches = append(searches, plannedSearch{
						label: string(t.docType),
						query: query,
						opts:  search.Options{TopK: a.config.FilteredTopK, Filter: filter},
					})
				}
				break
			}
		}
	}

	return searches
}

// pack greedily appends formatted blocks until the token budget runs out.
// The first block that does not fit whole is truncated if the remaining
// budget still buys a useful fragment, then packing stops.
func (a *Assembler) pack(results []vectorstore.SearchResult, maxTokens int) string {
	var b strings.Builder
	remaining := maxTokens

	for _, r := range results {
		doc := r.Document
		block := fmt.Sprintf("%s (%s):\n%s\n\n", doc.Metadata.Title, doc.Metadata.Type, doc.Content)
		cost := estimateTokens(block)
		if cost <= remaining {
			b.WriteString(block)
			remaining -= cost
			continue
		}
		if remaining*charsPerToken >= a.config.MinChars {
			b.WriteString(truncate(block, remaining*charsPerToken))
			b.WriteString("...")
		}
		break
	}

	return strings.TrimRight(b.String(), "\n")
}

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
