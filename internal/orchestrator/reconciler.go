package orchestrator

import (
	"context"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/store"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/models"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Requeuer reschedules a document for a full pipeline run. Satisfied by
// the queue client.
type Requeuer interface {
	EnqueueProcess(ctx context.Context, docID primitive.ObjectID) error
}

// Reconciler periodically repairs drift between the metadata store and
// the vector store: documents stuck in processing get requeued for a
// full redo, and vectors whose document is gone or failed get deleted.
type Reconciler struct {
	metadata  store.Metadata
	vectors   store.Vector
	requeue   Requeuer
	metrics   *telemetry.Metrics
	scheduler *gocron.Scheduler
	threshold time.Duration
	interval  time.Duration
}

func NewReconciler(metadata store.Metadata, vectors store.Vector, requeue Requeuer, metrics *telemetry.Metrics, cfg *config.Config) *Reconciler {
	return &Reconciler{
		metadata:  metadata,
		vectors:   vectors,
		requeue:   requeue,
		metrics:   metrics,
		scheduler: gocron.NewScheduler(time.UTC),
		threshold: cfg.StaleProcessingThreshold,
		interval:  cfg.ReconcileInterval,
	}
}

func (r *Reconciler) Start() error {
	_, err := r.scheduler.Every(r.interval).Tag("reconcile").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.interval)
		defer cancel()
		r.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	r.scheduler.StartAsync()
	logger.Info("Reconciler started", "interval", r.interval.String(), "stale_threshold", r.threshold.String())
	return nil
}

func (r *Reconciler) Stop() {
	r.scheduler.Stop()
}

// Sweep runs both repairs once. Errors are logged, not returned; the next
// tick retries whatever this one could not fix.
func (r *Reconciler) Sweep(ctx context.Context) {
	r.requeueStale(ctx)
	r.dropOrphanVectors(ctx)
}

func (r *Reconciler) requeueStale(ctx context.Context) {
	stale, err := r.metadata.StaleProcessing(ctx, r.threshold)
	if err != nil {
		logger.Error("Stale-processing query failed", "error", err)
		return
	}
	for _, doc := range stale {
		// Back to pending before enqueueing, so a crashed worker's half
		// finished run is redone from the top.
		if err := r.metadata.SetStatus(ctx, doc.ID, models.StatusPending, ""); err != nil {
			logger.Error("Failed to reset stale document", "document_id", doc.ID.Hex(), "error", err)
			continue
		}
		r.metadata.AppendLog(ctx, doc.ID, models.StatusPending, "reconcile",
			"stale processing run requeued")
		if err := r.requeue.EnqueueProcess(ctx, doc.ID); err != nil {
			logger.Error("Failed to requeue stale document", "document_id", doc.ID.Hex(), "error", err)
			continue
		}
		logger.Warn("Requeued stale document", "document_id", doc.ID.Hex())
	}
}

func (r *Reconciler) dropOrphanVectors(ctx context.Context) {
	vectorDocs, err := r.vectors.DocumentIDs(ctx)
	if err != nil {
		logger.Error("Vector document listing failed", "error", err)
		return
	}
	if len(vectorDocs) == 0 {
		return
	}

	statuses, err := r.metadata.DocumentStatuses(ctx, vectorDocs)
	if err != nil {
		logger.Error("Document status lookup failed", "error", err)
		return
	}

	for _, docID := range vectorDocs {
		status, exists := statuses[docID]
		if exists && status != models.StatusFailed {
			continue
		}
		count, err := r.vectors.CountByDocument(ctx, docID)
		if err != nil {
			count = 0
		}
		if err := r.vectors.DeleteByDocument(ctx, docID); err != nil {
			logger.Error("Orphan vector cleanup failed", "document_id", docID.Hex(), "error", err)
			continue
		}
		if r.metrics != nil && count > 0 {
			r.metrics.VectorsReconciled.Add(ctx, count)
		}
		logger.Warn("Dropped orphan vectors", "document_id", docID.Hex(), "count", count)
	}
}
