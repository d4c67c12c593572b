package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/store"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Result is one retrieved chunk with its owning document's provenance
// attached for citation.
type Result struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	FilePath     string  `json:"file_path,omitempty"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	KeywordScore float64 `json:"keyword_score,omitempty"`
	Source       string  `json:"source"` // "vector", "keyword" or "hybrid"
}

// QueryEmbedder embeds a retrieval query. Satisfied by embedder.Service.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// MetadataSearcher is the slice of the metadata store retrieval needs.
// Satisfied by store.Metadata.
type MetadataSearcher interface {
	FilterDocumentIDs(ctx context.Context, filter *store.Filter) ([]primitive.ObjectID, error)
	KeywordSearch(ctx context.Context, query string, limit int, docIDs []primitive.ObjectID) ([]store.Match, error)
	DocumentRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]store.DocumentRef, error)
	GetChunksByID(ctx context.Context, chunkIDs []string) ([]models.Chunk, error)
}

// VectorSearcher is the similarity side. Satisfied by store.Vector.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int, docIDs []primitive.ObjectID) ([]store.Match, error)
}

// candidate accumulates scores from both legs before ranking.
type candidate struct {
	documentID   primitive.ObjectID
	vectorScore  float64
	keywordScore float64
	fromVector   bool
	fromKeyword  bool
}

// Engine runs hybrid retrieval: a cosine similarity leg over the vector
// store and a keyword leg over the chunk text index, merged by weighted
// score. Only chunks of completed documents are served.
type Engine struct {
	metadata     MetadataSearcher
	vectors      VectorSearcher
	embedder     QueryEmbedder
	metrics      *telemetry.Metrics
	threshold    float64
	oversample   int
	vectorWeight float64
	keywordBoost float64
}

func New(metadata MetadataSearcher, vectors VectorSearcher, embed QueryEmbedder, metrics *telemetry.Metrics, cfg *config.Config) *Engine {
	oversample := cfg.OversampleFactor
	if oversample < 1 {
		oversample = 4
	}
	return &Engine{
		metadata:     metadata,
		vectors:      vectors,
		embedder:     embed,
		metrics:      metrics,
		threshold:    cfg.SimilarityThreshold,
		oversample:   oversample,
		vectorWeight: cfg.VectorWeight,
		keywordBoost: cfg.KeywordBoost,
	}
}

// Search returns the top k chunks for query. A non-empty filter restricts
// both legs to the documents the filter matches.
func (e *Engine) Search(ctx context.Context, query string, k int, filter *store.Filter) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if k <= 0 {
		k = 10
	}

	tracer := otel.Tracer("retrieval")
	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.k", k))

	started := time.Now()

	docIDs, err := e.metadata.FilterDocumentIDs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filter: %w", err)
	}
	if docIDs != nil && len(docIDs) == 0 {
		// Filter matches no documents.
		return []Result{}, nil
	}

	// Both legs oversample so the threshold filter and the validity join
	// still leave enough to fill k.
	fetchLimit := k * e.oversample

	var vectorMatches, keywordMatches []store.Match
	var vectorErr, keywordErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorMatches, vectorErr = e.vectorLeg(ctx, query, fetchLimit, docIDs)
	}()
	go func() {
		defer wg.Done()
		keywordMatches, keywordErr = e.metadata.KeywordSearch(ctx, query, fetchLimit, docIDs)
	}()
	wg.Wait()

	// One failed leg degrades to the other instead of failing the query.
	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("retrieval failed: vector=%v, keyword=%v", vectorErr, keywordErr)
	}
	if vectorErr != nil {
		logger.Warn("Vector leg failed, serving keyword results only", "error", vectorErr)
	}
	if keywordErr != nil {
		logger.Warn("Keyword leg failed, serving vector results only", "error", keywordErr)
	}
	span.SetAttributes(
		attribute.Int("retrieval.vector_matches", len(vectorMatches)),
		attribute.Int("retrieval.keyword_matches", len(keywordMatches)),
	)

	candidates := e.merge(vectorMatches, keywordMatches)
	results, err := e.rank(ctx, candidates, k)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RetrievalDuration.Record(ctx, time.Since(started).Seconds())
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(results)))
	return results, nil
}

func (e *Engine) vectorLeg(ctx context.Context, query string, limit int, docIDs []primitive.ObjectID) ([]store.Match, error) {
	queryVector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := e.vectors.Search(ctx, queryVector, limit, docIDs)
	if err != nil {
		return nil, err
	}

	// Drop weak similarity before it can crowd out keyword hits.
	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= e.threshold {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// merge folds both legs into one candidate per chunk, keeping the best
// score a leg produced for it.
func (e *Engine) merge(vectorMatches, keywordMatches []store.Match) map[string]*candidate {
	candidates := make(map[string]*candidate, len(vectorMatches)+len(keywordMatches))
	for _, m := range vectorMatches {
		c := candidates[m.ChunkID]
		if c == nil {
			c = &candidate{documentID: m.DocumentID}
			candidates[m.ChunkID] = c
		}
		c.fromVector = true
		if m.Score > c.vectorScore {
			c.vectorScore = m.Score
		}
	}
	for _, m := range keywordMatches {
		c := candidates[m.ChunkID]
		if c == nil {
			c = &candidate{documentID: m.DocumentID}
			candidates[m.ChunkID] = c
		}
		c.fromKeyword = true
		if m.Score > c.keywordScore {
			c.keywordScore = m.Score
		}
	}
	return candidates
}

// rank joins candidates against document status, scores them and hydrates
// the winners.
func (e *Engine) rank(ctx context.Context, candidates map[string]*candidate, k int) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	docIDs := make([]primitive.ObjectID, 0, len(candidates))
	seen := make(map[primitive.ObjectID]bool)
	for _, c := range candidates {
		if !seen[c.documentID] {
			seen[c.documentID] = true
			docIDs = append(docIDs, c.documentID)
		}
	}
	refs, err := e.metadata.DocumentRefs(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for chunkID, c := range candidates {
		// A chunk is only servable while its document is completed. This
		// hides documents mid-reprocessing and failed ones whose rows the
		// reconciler has not swept yet.
		ref, ok := refs[c.documentID]
		if !ok || ref.Status != models.StatusCompleted {
			continue
		}
		results = append(results, Result{
			ChunkID:      chunkID,
			DocumentID:   c.documentID.Hex(),
			Filename:     ref.Filename,
			FilePath:     ref.FilePath,
			Score:        e.vectorWeight*c.vectorScore + e.keywordBoost*c.keywordScore,
			VectorScore:  c.vectorScore,
			KeywordScore: c.keywordScore,
			Source:       sourceTag(c),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}

	return e.hydrate(ctx, results)
}

func (e *Engine) hydrate(ctx context.Context, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}
	chunkIDs := make([]string, len(results))
	for i, r := range results {
		chunkIDs[i] = r.ChunkID
	}
	chunks, err := e.metadata.GetChunksByID(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
	}

	hydrated := results[:0]
	for _, r := range results {
		chunk, ok := byID[r.ChunkID]
		if !ok {
			// The chunk was superseded between ranking and hydration.
			continue
		}
		r.Content = chunk.Content
		r.ChunkIndex = chunk.Index
		hydrated = append(hydrated, r)
	}
	return hydrated, nil
}

func sourceTag(c *candidate) string {
	switch {
	case c.fromVector && c.fromKeyword:
		return "hybrid"
	case c.fromVector:
		return "vector"
	default:
		return "keyword"
	}
}
