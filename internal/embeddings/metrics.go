package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments embedding generation.
type Metrics struct {
	generationDuration metric.Float64Histogram
	batchSize          metric.Int64Histogram
	fallbackTotal      metric.Int64Counter
}

// NewMetrics creates embedding metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/wellfoundry/nutrid/internal/embeddings")

	generationDuration, err := meter.Float64Histogram(
		"nutrid.embedding.generation_duration_seconds",
		metric.WithDescription("Time to generate a batch of embeddings"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating generation duration histogram: %w", err)
	}

	batchSize, err := meter.Int64Histogram(
		"nutrid.embedding.batch_size",
		metric.WithDescription("Number of texts per embedding batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch size histogram: %w", err)
	}

	fallbackTotal, err := meter.Int64Counter(
		"nutrid.embedding.fallback_total",
		metric.WithDescription("Remote embedding calls served by the local fallback"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fallback counter: %w", err)
	}

	return &Metrics{
		generationDuration: generationDuration,
		batchSize:          batchSize,
		fallbackTotal:      fallbackTotal,
	}, nil
}

// RecordGeneration records a completed embedding batch.
func (m *Metrics) RecordGeneration(ctx context.Context, d time.Duration, batch int) {
	m.generationDuration.Record(ctx, d.Seconds())
	m.batchSize.Record(ctx, int64(batch))
}

// RecordFallback records a remote call served locally.
func (m *Metrics) RecordFallback(ctx context.Context) {
	m.fallbackTotal.Add(ctx, 1)
}
