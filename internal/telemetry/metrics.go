package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	DocumentsProcessed metric.Int64Counter
	DocumentsFailed    metric.Int64Counter
	ChunksIndexed      metric.Int64Counter
	VectorsReconciled  metric.Int64Counter
	PipelineDuration   metric.Float64Histogram
	EmbedBatchDuration metric.Float64Histogram
	RetrievalDuration  metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("document-rag-platform")

	documentsProcessed, err := meter.Int64Counter(
		"ingest.documents.completed",
		metric.WithDescription("Documents that reached completed status"),
	)
	if err != nil {
		return nil, err
	}

	documentsFailed, err := meter.Int64Counter(
		"ingest.documents.failed",
		metric.WithDescription("Documents that reached failed status"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"ingest.chunks.indexed",
		metric.WithDescription("Chunk rows written with a matching vector"),
	)
	if err != nil {
		return nil, err
	}

	vectorsReconciled, err := meter.Int64Counter(
		"reconcile.vectors.deleted",
		metric.WithDescription("Orphan vectors removed by the reconciliation sweep"),
	)
	if err != nil {
		return nil, err
	}

	pipelineDuration, err := meter.Float64Histogram(
		"ingest.pipeline.duration",
		metric.WithDescription("Whole-document pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	embedBatchDuration, err := meter.Float64Histogram(
		"embed.batch.duration",
		metric.WithDescription("Embedding batch call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"retrieve.duration",
		metric.WithDescription("Hybrid retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DocumentsProcessed: documentsProcessed,
		DocumentsFailed:    documentsFailed,
		ChunksIndexed:      chunksIndexed,
		VectorsReconciled:  vectorsReconciled,
		PipelineDuration:   pipelineDuration,
		EmbedBatchDuration: embedBatchDuration,
		RetrievalDuration:  retrievalDuration,
	}, nil
}

// RecordCompleted records a completed document with its chunk count.
func (m *Metrics) RecordCompleted(ctx context.Context, chunks int, seconds float64) {
	if m == nil {
		return
	}
	m.DocumentsProcessed.Add(ctx, 1)
	m.ChunksIndexed.Add(ctx, int64(chunks))
	m.PipelineDuration.Record(ctx, seconds)
}

// RecordFailed records a failed document with the failing step.
func (m *Metrics) RecordFailed(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.DocumentsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}
