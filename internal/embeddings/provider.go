// Package embeddings generates vector embeddings for nutrition knowledge
// documents, either through a remote text-embeddings-inference service or a
// deterministic local embedder.
package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wellfoundry/nutrid/internal/vectorstore"
)

// Mode identifies which embedding strategy is active.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// Config configures the embedding provider.
type Config struct {
	// BaseURL and APIKey select remote mode when both are non-empty.
	BaseURL string
	APIKey  string

	// Timeout bounds each remote request. Default: 10s.
	Timeout time.Duration

	// RateLimit caps remote requests per second. Zero disables limiting.
	RateLimit float64

	// MaxChars truncates input text before remote embedding. Default: 512.
	MaxChars int

	// VectorSize is the embedding dimension. Default: 384.
	VectorSize int
}

// Provider generates embeddings, preferring the remote service and falling
// back to the local embedder on any per-call failure. Embedding never fails:
// callers always receive one L2-normalized vector per input.
type Provider struct {
	remote  *RemoteService
	local   *LocalEmbedder
	metrics *Metrics
	logger  *zap.Logger
}

// NewProvider creates a provider. Remote mode requires both BaseURL and
// APIKey; otherwise the provider runs purely local.
func NewProvider(config Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.VectorSize == 0 {
		config.VectorSize = 384
	}

	local, err := NewLocalEmbedder(config.VectorSize)
	if err != nil {
		return nil, fmt.Errorf("creating local embedder: %w", err)
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	p := &Provider{local: local, metrics: metrics, logger: logger}

	if config.BaseURL != "" && config.APIKey != "" {
		remote, err := NewRemoteService(RemoteConfig{
			BaseURL:    config.BaseURL,
			APIKey:     config.APIKey,
			Timeout:    config.Timeout,
			RateLimit:  config.RateLimit,
			MaxChars:   config.MaxChars,
			VectorSize: config.VectorSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating remote service: %w", err)
		}
		p.remote = remote
		logger.Info("embedding provider initialized",
			zap.String("mode", string(ModeRemote)),
			zap.String("base_url", config.BaseURL),
			zap.Int("vector_size", config.VectorSize))
	} else {
		logger.Info("embedding provider initialized",
			zap.String("mode", string(ModeLocal)),
			zap.Int("vector_size", config.VectorSize))
	}

	return p, nil
}

// Mode reports the configured strategy. A provider in remote mode may still
// serve individual calls locally when the service is unreachable.
func (p *Provider) Mode() Mode {
	if p.remote != nil {
		return ModeRemote
	}
	return ModeLocal
}

// Dimension returns the embedding dimension.
func (p *Provider) Dimension() int {
	return p.local.Dimension()
}

// EmbedDocuments embeds a batch of texts for storage.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	if p.remote != nil {
		vectors, err := p.remote.Embed(ctx, texts)
		if err == nil {
			p.metrics.RecordGeneration(ctx, time.Since(start), len(texts))
			return normalizeAll(vectors), nil
		}
		p.metrics.RecordFallback(ctx)
		p.logger.Warn("remote embedding failed, using local embedder",
			zap.Int("batch_size", len(texts)),
			zap.Error(err))
	}

	vectors, _ := p.local.EmbedDocuments(ctx, texts)
	p.metrics.RecordGeneration(ctx, time.Since(start), len(texts))
	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func normalizeAll(vectors [][]float32) [][]float32 {
	for i, v := range vectors {
		vectors[i] = vectorstore.Normalize(v)
	}
	return vectors
}

// Ensure Provider satisfies the store's embedder contract.
var _ vectorstore.Embedder = (*Provider)(nil)
