package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeRequeuer struct {
	mu   sync.Mutex
	docs []primitive.ObjectID
}

func (f *fakeRequeuer) EnqueueProcess(ctx context.Context, docID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, docID)
	return nil
}

func testReconcilerConfig() *config.Config {
	return &config.Config{
		StaleProcessingThreshold: time.Minute,
		ReconcileInterval:        time.Minute,
	}
}

func TestSweepRequeuesStaleProcessing(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	requeue := &fakeRequeuer{}
	r := NewReconciler(metadata, vectors, requeue, nil, testReconcilerConfig())

	staleID := metadata.addDocument("/tmp/stale.txt")
	metadata.mu.Lock()
	metadata.docs[staleID].Status = models.StatusProcessing
	metadata.docs[staleID].UpdatedAt = time.Now().Add(-2 * time.Hour)
	metadata.mu.Unlock()

	freshID := metadata.addDocument("/tmp/fresh.txt")
	metadata.SetStatus(context.Background(), freshID, models.StatusProcessing, "")

	r.Sweep(context.Background())

	if len(requeue.docs) != 1 || requeue.docs[0] != staleID {
		t.Fatalf("expected only the stale document requeued, got %v", requeue.docs)
	}
	doc, _ := metadata.GetDocument(context.Background(), staleID)
	if doc.Status != models.StatusPending {
		t.Errorf("stale document should be reset to pending, got %s", doc.Status)
	}
	fresh, _ := metadata.GetDocument(context.Background(), freshID)
	if fresh.Status != models.StatusProcessing {
		t.Errorf("fresh processing document should be untouched, got %s", fresh.Status)
	}
}

func TestSweepDropsOrphanVectors(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	r := NewReconciler(metadata, vectors, &fakeRequeuer{}, nil, testReconcilerConfig())

	liveID := metadata.addDocument("/tmp/live.txt")
	metadata.SetStatus(context.Background(), liveID, models.StatusCompleted, "")

	failedID := metadata.addDocument("/tmp/failed.txt")
	metadata.SetStatus(context.Background(), failedID, models.StatusFailed, "boom")

	goneID := primitive.NewObjectID()

	vectors.Upsert(context.Background(), []models.ChunkVector{
		{DocumentID: liveID, ChunkID: "live-1", Vector: []float32{1}},
		{DocumentID: failedID, ChunkID: "failed-1", Vector: []float32{1}},
		{DocumentID: goneID, ChunkID: "gone-1", Vector: []float32{1}},
		{DocumentID: goneID, ChunkID: "gone-2", Vector: []float32{1}},
	})

	r.Sweep(context.Background())

	if _, ok := vectors.rows["live-1"]; !ok {
		t.Error("vectors of a completed document must survive the sweep")
	}
	if _, ok := vectors.rows["failed-1"]; ok {
		t.Error("vectors of a failed document should be dropped")
	}
	if _, ok := vectors.rows["gone-1"]; ok {
		t.Error("vectors of a deleted document should be dropped")
	}
	count, _ := vectors.Count(context.Background())
	if count != 1 {
		t.Errorf("expected 1 surviving vector, got %d", count)
	}
}
