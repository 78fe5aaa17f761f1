// Package main implements the nutrid CLI for operating the nutrition
// knowledge engine: ingesting documents, searching, and assembling context.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wellfoundry/nutrid/internal/assemble"
	"github.com/wellfoundry/nutrid/internal/config"
	"github.com/wellfoundry/nutrid/internal/logging"
	"github.com/wellfoundry/nutrid/internal/search"
	"github.com/wellfoundry/nutrid/internal/vectorstore"
	"github.com/wellfoundry/nutrid/pkg/engine"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nutrid",
	Short: "Nutrition knowledge retrieval engine",
	Long: `nutrid manages a vector-backed nutrition knowledge base.
It ingests nutrition records, answers similarity queries, and assembles
token-budgeted context blocks for prompt construction.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/nutrid/config.yaml)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
}

// newEngine builds an engine from the configured settings.
func newEngine() (*engine.Engine, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return engine.New(cfg, engine.WithLogger(logger))
}

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest documents from a JSON file into the knowledge base.

The file holds an array of documents:

  [{"id": "fact-1", "content": "...", "metadata": {"type": "fact", ...}}]

Examples:
  nutrid ingest --file docs.json`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "JSON file with documents to ingest")
	_ = ingestCmd.MarkFlagRequired("file")
}

func runIngest(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(ingestFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", ingestFile, err)
	}
	var docs []vectorstore.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("parsing %s: %w", ingestFile, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s contains no documents", ingestFile)
	}

	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.AddDocuments(cmd.Context(), docs); err != nil {
		return fmt.Errorf("ingesting documents: %w", err)
	}
	fmt.Printf("Ingested %d documents\n", len(docs))
	return nil
}

var (
	searchTopK int
	searchType string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Long: `Run a similarity search and print matching documents with scores.

Examples:
  nutrid search "high protein breakfast"
  nutrid search --type recipe --top-k 3 "quick dinner"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVar(&searchType, "type", "", "restrict to a document type (fact, recipe, ...)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	query := strings.Join(args, " ")
	opts := search.Options{TopK: searchTopK}
	if searchType != "" {
		docType := vectorstore.DocType(searchType)
		if !docType.Valid() {
			return fmt.Errorf("invalid document type %q", searchType)
		}
		filter, err := vectorstore.NewFilter(vectorstore.Equals(vectorstore.FieldType, searchType))
		if err != nil {
			return err
		}
		opts.Filter = filter
	}

	resp, err := eng.SearchSimilar(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if resp.TotalResults == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, doc := range resp.Documents {
		fmt.Printf("%d. [%.3f] %s (%s, %s)\n   %s\n",
			i+1, resp.Scores[i], doc.Metadata.Title, doc.Metadata.Type, doc.Metadata.Source,
			firstLine(doc.Content))
	}
	fmt.Printf("\n%d results in %dms\n", resp.TotalResults, resp.SearchTimeMs)
	return nil
}

var (
	queryMaxTokens int
	queryGoals     []string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Assemble a context block for a question",
	Long: `Assemble a credibility-ordered, token-budgeted context block.

Examples:
  nutrid query "what should I eat before a workout"
  nutrid query --goals muscle_gain --max-tokens 512 "post workout meal"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxTokens, "max-tokens", 0, "token budget (default from config)")
	queryCmd.Flags().StringSliceVar(&queryGoals, "goals", nil, "user goals to steer retrieval")
}

func runQuery(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	block, err := eng.RelevantContext(cmd.Context(), strings.Join(args, " "),
		assemble.Hints{Goals: queryGoals}, queryMaxTokens)
	if err != nil {
		return fmt.Errorf("assembling context: %w", err)
	}
	if block == "" {
		fmt.Println("No relevant context found")
		return nil
	}
	fmt.Println(block)
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	fmt.Printf("Documents:      %d\n", stats.TotalDocuments)
	fmt.Printf("Backend:        %s\n", stats.Backend)
	fmt.Printf("Embedding mode: %s\n", stats.EmbeddingMode)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
