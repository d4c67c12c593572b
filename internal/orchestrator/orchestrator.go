package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"document-rag-platform/internal/chunker"
	"document-rag-platform/internal/config"
	"document-rag-platform/internal/loader"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/store"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Pipeline step names recorded in the processing log.
const (
	StepExtract = "extract"
	StepChunk   = "chunk"
	StepEmbed   = "embed"
	StepStore   = "store"
)

// Extractor turns a stored file into text. Satisfied by loader.Registry.
type Extractor interface {
	Load(ctx context.Context, path string) (*loader.Result, error)
}

// Embedder turns chunk texts into vectors. Satisfied by embedder.Service.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Orchestrator drives one document through extract, chunk, embed and the
// dual-store write. It owns every status transition for the document.
type Orchestrator struct {
	metadata     store.Metadata
	vectors      store.Vector
	extractor    Extractor
	chunker      *chunker.Chunker
	embedder     Embedder
	metrics      *telemetry.Metrics
	writeRetries int
	minTextSize  int
	timeout      time.Duration
}

func New(metadata store.Metadata, vectors store.Vector, extractor Extractor, embed Embedder, metrics *telemetry.Metrics, cfg *config.Config) *Orchestrator {
	retries := cfg.StoreWriteRetries
	if retries <= 0 {
		retries = 3
	}
	return &Orchestrator{
		metadata:     metadata,
		vectors:      vectors,
		extractor:    extractor,
		chunker:      chunker.New(cfg.ChunkTargetSize, cfg.ChunkOverlap),
		embedder:     embed,
		metrics:      metrics,
		writeRetries: retries,
		minTextSize:  cfg.MinChunkSize,
		timeout:      cfg.PipelineTimeout,
	}
}

// Process runs the full pipeline for one document. It is safe to call
// again for the same document after a failure or a stale-processing
// requeue; the run supersedes whatever the previous one left behind.
func (o *Orchestrator) Process(ctx context.Context, docID primitive.ObjectID) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	tracer := otel.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", docID.Hex()))

	started := time.Now()

	doc, err := o.metadata.GetDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &TerminalError{Err: fmt.Errorf("document %s not found", docID.Hex())}
		}
		return err
	}

	if err := o.metadata.SetStatus(ctx, docID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark processing: %w", err)
	}
	o.metadata.AppendLog(ctx, docID, models.StatusProcessing, StepExtract, "pipeline started")

	result, err := o.extractor.Load(ctx, doc.FilePath)
	if err != nil {
		return o.fail(ctx, docID, StepExtract, err)
	}
	span.SetAttributes(attribute.Int("document.text_bytes", len(result.Text)))

	// Too little text to index. Completed with an empty chunk set rather
	// than failed, so the upload is visible and queryable as a no-op.
	if len(result.Text) < o.minTextSize {
		if err := o.storeChunks(ctx, docID, nil, nil); err != nil {
			return o.fail(ctx, docID, StepStore, err)
		}
		return o.complete(ctx, docID, 0, started)
	}

	segments := o.chunker.Split(result.Text)
	o.metadata.AppendLog(ctx, docID, models.StatusProcessing, StepChunk,
		fmt.Sprintf("split into %d chunks", len(segments)))
	span.SetAttributes(attribute.Int("document.chunks", len(segments)))

	texts := make([]string, len(segments))
	for i, segment := range segments {
		texts[i] = segment.Content
	}

	vectors, err := o.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return o.fail(ctx, docID, StepEmbed, err)
	}
	if len(vectors) != len(segments) {
		return o.fail(ctx, docID, StepEmbed,
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(segments)))
	}

	chunks := make([]models.Chunk, len(segments))
	rows := make([]models.ChunkVector, len(segments))
	for i, segment := range segments {
		chunkID := uuid.NewString()
		chunks[i] = models.Chunk{
			DocumentID:  docID,
			ChunkID:     chunkID,
			Index:       segment.Index,
			Content:     segment.Content,
			StartOffset: segment.Start,
			EndOffset:   segment.End,
			Keywords:    segment.Keywords,
		}
		rows[i] = models.ChunkVector{
			DocumentID: docID,
			ChunkID:    chunkID,
			Index:      segment.Index,
			Vector:     vectors[i],
		}
	}

	if err := o.storeChunks(ctx, docID, chunks, rows); err != nil {
		return o.fail(ctx, docID, StepStore, err)
	}

	return o.complete(ctx, docID, len(chunks), started)
}

// storeChunks writes metadata first, then the derived vectors. Old vectors
// are dropped before the new set goes in so a superseded run leaves
// nothing behind. Both stores get bounded retries.
func (o *Orchestrator) storeChunks(ctx context.Context, docID primitive.ObjectID, chunks []models.Chunk, rows []models.ChunkVector) error {
	err := o.retryWrite(ctx, func() error {
		return o.metadata.ReplaceChunks(ctx, docID, chunks)
	})
	if err != nil {
		return fmt.Errorf("chunk write failed: %w", err)
	}

	err = o.retryWrite(ctx, func() error {
		return o.vectors.DeleteByDocument(ctx, docID)
	})
	if err != nil {
		return fmt.Errorf("stale vector cleanup failed: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}
	err = o.retryWrite(ctx, func() error {
		return o.vectors.Upsert(ctx, rows)
	})
	if err != nil {
		return fmt.Errorf("vector write failed: %w", err)
	}
	return nil
}

func (o *Orchestrator) retryWrite(ctx context.Context, write func() error) error {
	var lastErr error
	for attempt := 1; attempt <= o.writeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = write(); lastErr == nil {
			return nil
		}
		if attempt < o.writeRetries {
			logger.Warn("Store write failed, retrying", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
	}
	return lastErr
}

func (o *Orchestrator) complete(ctx context.Context, docID primitive.ObjectID, chunkCount int, started time.Time) error {
	if err := o.metadata.SetStatus(ctx, docID, models.StatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	o.metadata.AppendLog(ctx, docID, models.StatusCompleted, StepStore,
		fmt.Sprintf("indexed %d chunks", chunkCount))
	if o.metrics != nil {
		o.metrics.RecordCompleted(ctx, chunkCount, time.Since(started).Seconds())
	}
	logger.Info("Document indexed", "document_id", docID.Hex(), "chunks", chunkCount,
		"duration", time.Since(started).String())
	return nil
}

// fail moves the document to failed and removes any vectors this or a
// previous run wrote, so a failed document never serves retrieval results.
// Cleanup runs on a fresh context because ctx may already be dead.
func (o *Orchestrator) fail(ctx context.Context, docID primitive.ObjectID, step string, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := o.vectors.DeleteByDocument(cleanupCtx, docID); err != nil {
		logger.Error("Failed to clean up vectors", "document_id", docID.Hex(), "error", err)
	}
	if err := o.metadata.SetStatus(cleanupCtx, docID, models.StatusFailed, cause.Error()); err != nil {
		logger.Error("Failed to mark document failed", "document_id", docID.Hex(), "error", err)
	}
	o.metadata.AppendLog(cleanupCtx, docID, models.StatusFailed, step, cause.Error())
	if o.metrics != nil {
		o.metrics.RecordFailed(cleanupCtx, step)
	}
	logger.Error("Pipeline failed", "document_id", docID.Hex(), "step", step, "error", cause)

	if loader.IsTerminal(cause) {
		return &TerminalError{Err: cause}
	}
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return fmt.Errorf("%s: %w", step, cause)
}
