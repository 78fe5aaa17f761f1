package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// State tracks pipeline progress.
type State string

const (
	StateIdle                State = "idle"
	StateRunning             State = "running"
	StateCompleted           State = "completed"
	StateCompletedWithErrors State = "completed_with_errors"
)

// Result summarizes an ingestion run.
type Result struct {
	// Success is true when every source ingested cleanly.
	Success bool

	// TotalDocuments counts documents written to the store.
	TotalDocuments int

	// Errors holds one message per failed source or batch.
	Errors []string
}

// Pipeline ingests documents from registered sources into the vector store.
// Sources run concurrently; a failing source never aborts the others.
type Pipeline struct {
	store     vectorstore.Store
	embedder  vectorstore.Embedder
	sources   []Source
	batchSize int
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// NewPipeline creates an ingestion pipeline. batchSize bounds how many
// documents are embedded and stored per store call.
func NewPipeline(store vectorstore.Store, embedder vectorstore.Embedder, sources []Source, batchSize int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Pipeline{
		store:     store,
		embedder:  embedder,
		sources:   sources,
		batchSize: batchSize,
		logger:    logger,
		state:     StateIdle,
	}
}

// State reports the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// IngestAll runs every registered source concurrently and waits for all of
// them to settle. Per-source failures are collected into the result rather
// than returned as an error.
func (p *Pipeline) IngestAll(ctx context.Context) Result {
	p.setState(StateRunning)
	start := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		total   int
		errMsgs []string
	)
	for _, src := range p.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			n, err := p.ingestSource(ctx, src)
			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				errMsgs = append(errMsgs, fmt.Sprintf("%s: %v", src.Name(), err))
			}
		}(src)
	}
	wg.Wait()

	result := Result{
		Success:        len(errMsgs) == 0,
		TotalDocuments: total,
		Errors:         errMsgs,
	}
	if result.Success {
		p.setState(StateCompleted)
	} else {
		p.setState(StateCompletedWithErrors)
	}

	p.logger.Info("ingestion finished",
		zap.Int("documents", total),
		zap.Int("failed_sources", len(errMsgs)),
		zap.Duration("elapsed", time.Since(start)))

	return result
}

// IngestSource runs a single source by name.
func (p *Pipeline) IngestSource(ctx context.Context, name string) (int, error) {
	for _, src := range p.sources {
		if src.Name() == name {
			return p.ingestSource(ctx, src)
		}
	}
	return 0, fmt.Errorf("unknown source %q", name)
}

func (p *Pipeline) ingestSource(ctx context.Context, src Source) (int, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading documents: %w", err)
	}

	stored := 0
	for i := 0; i < len(docs); i += p.batchSize {
		end := i + p.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[i:end]
		if err := p.Upsert(ctx, batch); err != nil {
			return stored, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		stored += len(batch)
	}

	p.logger.Debug("source ingested",
		zap.String("source", src.Name()),
		zap.Int("documents", stored))
	return stored, nil
}

// Upsert embeds and stores documents, overwriting on ID collision.
func (p *Pipeline) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	embeddings, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if err := p.store.AddBatch(ctx, docs, embeddings); err != nil {
		return fmt.Errorf("storing documents: %w", err)
	}
	return nil
}

// Delete removes a document by ID.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	return p.store.Delete(ctx, id)
}
