package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/loader"
	"document-rag-platform/internal/store"
	"document-rag-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeMetadata struct {
	mu     sync.Mutex
	docs   map[primitive.ObjectID]*models.Document
	chunks map[primitive.ObjectID][]models.Chunk
	logs   []models.ProcessingLog
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		docs:   map[primitive.ObjectID]*models.Document{},
		chunks: map[primitive.ObjectID][]models.Chunk{},
	}
}

func (f *fakeMetadata) addDocument(path string) primitive.ObjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := primitive.NewObjectID()
	f.docs[id] = &models.Document{ID: id, FilePath: path, Status: models.StatusPending}
	return id
}

func (f *fakeMetadata) InsertDocument(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = primitive.NewObjectID()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeMetadata) GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeMetadata) FindByHash(ctx context.Context, hash string) (*models.Document, error) {
	return nil, store.ErrNotFound
}

func (f *fakeMetadata) ListDocuments(ctx context.Context, limit, offset int) ([]models.Document, int64, error) {
	return nil, 0, nil
}

func (f *fakeMetadata) SetStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = time.Now()
	return nil
}

func (f *fakeMetadata) ReplaceChunks(ctx context.Context, docID primitive.ObjectID, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[docID] = chunks
	if doc, ok := f.docs[docID]; ok {
		doc.ChunkCount = len(chunks)
	}
	return nil
}

func (f *fakeMetadata) GetChunks(ctx context.Context, docID primitive.ObjectID) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[docID], nil
}

func (f *fakeMetadata) GetChunksByID(ctx context.Context, chunkIDs []string) ([]models.Chunk, error) {
	return nil, nil
}

func (f *fakeMetadata) AppendLog(ctx context.Context, docID primitive.ObjectID, status, step, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, models.ProcessingLog{
		DocumentID: docID, Status: status, Step: step, Message: message, CreatedAt: time.Now(),
	})
}

func (f *fakeMetadata) GetLogs(ctx context.Context, docID primitive.ObjectID) ([]models.ProcessingLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProcessingLog
	for _, entry := range f.logs {
		if entry.DocumentID == docID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeMetadata) StaleProcessing(ctx context.Context, threshold time.Duration) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var out []models.Document
	for _, doc := range f.docs {
		if doc.Status == models.StatusProcessing && doc.UpdatedAt.Before(cutoff) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeMetadata) DocumentStatuses(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := map[primitive.ObjectID]string{}
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			statuses[id] = doc.Status
		}
	}
	return statuses, nil
}

func (f *fakeMetadata) DocumentRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]store.DocumentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := map[primitive.ObjectID]store.DocumentRef{}
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			refs[id] = store.DocumentRef{Status: doc.Status, Filename: doc.OriginalName, FilePath: doc.FilePath}
		}
	}
	return refs, nil
}

func (f *fakeMetadata) FilterDocumentIDs(ctx context.Context, filter *store.Filter) ([]primitive.ObjectID, error) {
	return nil, nil
}

func (f *fakeMetadata) KeywordSearch(ctx context.Context, query string, limit int, docIDs []primitive.ObjectID) ([]store.Match, error) {
	return nil, nil
}

func (f *fakeMetadata) Stats(ctx context.Context) (*store.Stats, error) {
	return &store.Stats{}, nil
}

type fakeVector struct {
	mu   sync.Mutex
	rows map[string]models.ChunkVector
}

func newFakeVector() *fakeVector {
	return &fakeVector{rows: map[string]models.ChunkVector{}}
}

func (f *fakeVector) Upsert(ctx context.Context, vectors []models.ChunkVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		f.rows[v.ChunkID] = v
	}
	return nil
}

func (f *fakeVector) DeleteByDocument(ctx context.Context, docID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, v := range f.rows {
		if v.DocumentID == docID {
			delete(f.rows, id)
		}
	}
	return nil
}

func (f *fakeVector) CountByDocument(ctx context.Context, docID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, v := range f.rows {
		if v.DocumentID == docID {
			n++
		}
	}
	return n, nil
}

func (f *fakeVector) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

func (f *fakeVector) DocumentIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, v := range f.rows {
		if !seen[v.DocumentID] {
			seen[v.DocumentID] = true
			ids = append(ids, v.DocumentID)
		}
	}
	return ids, nil
}

func (f *fakeVector) Search(ctx context.Context, queryVector []float32, limit int, docIDs []primitive.ObjectID) ([]store.Match, error) {
	return nil, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Load(ctx context.Context, path string) (*loader.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &loader.Result{Text: f.text}, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return vectors, nil
}

func testOrchestratorConfig() *config.Config {
	return &config.Config{
		ChunkTargetSize:   40,
		ChunkOverlap:      10,
		MinChunkSize:      5,
		StoreWriteRetries: 2,
		PipelineTimeout:   time.Minute,
	}
}

func TestProcessHappyPath(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	text := strings.Repeat("The quick brown fox jumps over the dog. ", 4)
	o := New(metadata, vectors, &fakeExtractor{text: text}, &fakeEmbedder{}, nil, testOrchestratorConfig())

	docID := metadata.addDocument("/tmp/fox.txt")
	if err := o.Process(context.Background(), docID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	doc, _ := metadata.GetDocument(context.Background(), docID)
	if doc.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", doc.Status, doc.ErrorMessage)
	}
	chunks := metadata.chunks[docID]
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if doc.ChunkCount != len(chunks) {
		t.Errorf("chunk_count %d does not match %d chunks", doc.ChunkCount, len(chunks))
	}

	// Every chunk row has exactly one vector row under the same chunk_id.
	count, _ := vectors.CountByDocument(context.Background(), docID)
	if int(count) != len(chunks) {
		t.Fatalf("expected %d vectors, got %d", len(chunks), count)
	}
	for _, chunk := range chunks {
		if _, ok := vectors.rows[chunk.ChunkID]; !ok {
			t.Errorf("chunk %s has no vector", chunk.ChunkID)
		}
	}
}

func TestProcessEmbedFailureLeavesNoVectors(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	o := New(metadata, vectors,
		&fakeExtractor{text: strings.Repeat("some text to embed. ", 10)},
		&fakeEmbedder{err: errors.New("provider down")},
		nil, testOrchestratorConfig())

	docID := metadata.addDocument("/tmp/doc.txt")
	err := o.Process(context.Background(), docID)
	if err == nil {
		t.Fatal("expected pipeline failure")
	}
	if IsTerminal(err) {
		t.Error("embed failure should stay retryable")
	}

	doc, _ := metadata.GetDocument(context.Background(), docID)
	if doc.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Error("failure should record an error message")
	}
	count, _ := vectors.Count(context.Background())
	if count != 0 {
		t.Errorf("failed document must leave zero vectors, found %d", count)
	}

	logs, _ := metadata.GetLogs(context.Background(), docID)
	var sawEmbedFailure bool
	for _, entry := range logs {
		if entry.Status == models.StatusFailed && entry.Step == StepEmbed {
			sawEmbedFailure = true
		}
	}
	if !sawEmbedFailure {
		t.Error("expected a failed log entry for the embed step")
	}
}

func TestProcessUnsupportedFormatIsTerminal(t *testing.T) {
	metadata := newFakeMetadata()
	o := New(metadata, newFakeVector(),
		&fakeExtractor{err: loader.ErrUnsupportedFormat},
		&fakeEmbedder{}, nil, testOrchestratorConfig())

	docID := metadata.addDocument("/tmp/file.bin")
	err := o.Process(context.Background(), docID)
	if !IsTerminal(err) {
		t.Fatalf("unsupported format should be terminal, got %v", err)
	}

	doc, _ := metadata.GetDocument(context.Background(), docID)
	if doc.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", doc.Status)
	}
}

func TestProcessMissingDocumentIsTerminal(t *testing.T) {
	o := New(newFakeMetadata(), newFakeVector(), &fakeExtractor{}, &fakeEmbedder{}, nil, testOrchestratorConfig())
	err := o.Process(context.Background(), primitive.NewObjectID())
	if !IsTerminal(err) {
		t.Fatalf("missing document should be terminal, got %v", err)
	}
}

func TestProcessTinyTextCompletesEmpty(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	embed := &fakeEmbedder{}
	o := New(metadata, vectors, &fakeExtractor{text: "hi"}, embed, nil, testOrchestratorConfig())

	docID := metadata.addDocument("/tmp/tiny.txt")
	if err := o.Process(context.Background(), docID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	doc, _ := metadata.GetDocument(context.Background(), docID)
	if doc.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", doc.Status)
	}
	if doc.ChunkCount != 0 {
		t.Errorf("expected zero chunks, got %d", doc.ChunkCount)
	}
	if embed.calls != 0 {
		t.Error("nothing should be embedded for below-minimum text")
	}
}

func TestProcessReingestSupersedes(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	extractor := &fakeExtractor{text: strings.Repeat("first version of the text. ", 5)}
	o := New(metadata, vectors, extractor, &fakeEmbedder{}, nil, testOrchestratorConfig())

	docID := metadata.addDocument("/tmp/doc.txt")
	if err := o.Process(context.Background(), docID); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstChunks := metadata.chunks[docID]

	extractor.text = strings.Repeat("second version, rather different words. ", 5)
	if err := o.Process(context.Background(), docID); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	secondChunks := metadata.chunks[docID]

	for _, old := range firstChunks {
		if _, ok := vectors.rows[old.ChunkID]; ok {
			t.Errorf("superseded vector %s still present", old.ChunkID)
		}
	}
	count, _ := vectors.CountByDocument(context.Background(), docID)
	if int(count) != len(secondChunks) {
		t.Errorf("expected %d vectors after re-ingest, got %d", len(secondChunks), count)
	}
}

func TestProcessCancellationMarksFailed(t *testing.T) {
	metadata := newFakeMetadata()
	vectors := newFakeVector()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(metadata, vectors,
		&fakeExtractor{text: strings.Repeat("text to cancel mid flight. ", 5)},
		&fakeEmbedder{}, nil, testOrchestratorConfig())

	docID := metadata.addDocument("/tmp/doc.txt")
	// Status writes in the fakes ignore ctx, matching the real failure
	// path which cleans up on a fresh context.
	err := o.Process(ctx, docID)
	if err == nil {
		t.Fatal("expected cancellation error")
	}

	doc, _ := metadata.GetDocument(context.Background(), docID)
	if doc.Status != models.StatusFailed {
		t.Errorf("cancelled run should mark failed, got %s", doc.Status)
	}
	count, _ := vectors.Count(context.Background())
	if count != 0 {
		t.Errorf("cancelled run must leave zero vectors, found %d", count)
	}
}
