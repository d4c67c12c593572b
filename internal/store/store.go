package store

import (
	"context"
	"errors"
	"time"

	"document-rag-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a document or chunk lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Match is one scored candidate from either retrieval leg. Score is cosine
// similarity for the vector leg and the normalized $text score for the
// keyword leg.
type Match struct {
	ChunkID    string
	DocumentID primitive.ObjectID
	Score      float64
}

// Filter narrows retrieval to a subset of documents. A nil or empty
// filter matches everything.
type Filter struct {
	DocumentIDs []primitive.ObjectID
	FileTypes   []string
}

func (f *Filter) Empty() bool {
	return f == nil || (len(f.DocumentIDs) == 0 && len(f.FileTypes) == 0)
}

// DocumentRef is the slice of a document retrieval needs for the validity
// join and for citation provenance.
type DocumentRef struct {
	Status   string
	Filename string
	FilePath string
}

// Stats summarizes the state of the index.
type Stats struct {
	Documents     int64            `json:"documents"`
	ByStatus      map[string]int64 `json:"by_status"`
	Chunks        int64            `json:"chunks"`
	Vectors       int64            `json:"vectors"`
	AverageChunks float64          `json:"average_chunks_per_document"`
}

// Metadata is the source-of-truth side: documents, chunks and the
// processing audit log.
type Metadata interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]models.Document, int64, error)
	FindByHash(ctx context.Context, hash string) (*models.Document, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error

	// ReplaceChunks atomically swaps the full chunk set of a document and
	// updates its chunk count. A reader never observes a partial set.
	ReplaceChunks(ctx context.Context, docID primitive.ObjectID, chunks []models.Chunk) error
	GetChunks(ctx context.Context, docID primitive.ObjectID) ([]models.Chunk, error)
	GetChunksByID(ctx context.Context, chunkIDs []string) ([]models.Chunk, error)

	AppendLog(ctx context.Context, docID primitive.ObjectID, status, step, message string)
	GetLogs(ctx context.Context, docID primitive.ObjectID) ([]models.ProcessingLog, error)

	// StaleProcessing returns documents stuck in processing longer than
	// threshold, for the reconciliation sweep.
	StaleProcessing(ctx context.Context, threshold time.Duration) ([]models.Document, error)
	DocumentStatuses(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error)
	DocumentRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]DocumentRef, error)

	// FilterDocumentIDs resolves a retrieval filter to the document ids it
	// matches. An empty filter resolves to nil, meaning unrestricted.
	FilterDocumentIDs(ctx context.Context, filter *Filter) ([]primitive.ObjectID, error)
	KeywordSearch(ctx context.Context, query string, limit int, docIDs []primitive.ObjectID) ([]Match, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Vector is the derived similarity index. All writes are idempotent keyed
// by chunk_id so replays and retries converge.
type Vector interface {
	Upsert(ctx context.Context, vectors []models.ChunkVector) error
	DeleteByDocument(ctx context.Context, docID primitive.ObjectID) error
	CountByDocument(ctx context.Context, docID primitive.ObjectID) (int64, error)
	Count(ctx context.Context) (int64, error)
	DocumentIDs(ctx context.Context) ([]primitive.ObjectID, error)
	// Search returns the nearest chunks by cosine similarity. A non-nil
	// docIDs slice restricts candidates to those documents.
	Search(ctx context.Context, queryVector []float32, limit int, docIDs []primitive.ObjectID) ([]Match, error)
}
