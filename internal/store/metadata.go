package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/models"
	"document-rag-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMetadata implements Metadata on the documents, chunks and
// processing_logs collections.
type MongoMetadata struct {
	client    *mongo.Client
	documents *mongo.Collection
	chunks    *mongo.Collection
	logs      *mongo.Collection
	compress  bool
}

func NewMongoMetadata(client *mongo.Client, cfg *config.Config) *MongoMetadata {
	db := client.Database(cfg.DBName)
	return &MongoMetadata{
		client:    client,
		documents: db.Collection("documents"),
		chunks:    db.Collection("chunks"),
		logs:      db.Collection("processing_logs"),
		compress:  cfg.CompressChunks,
	}
}

func (s *MongoMetadata) InsertDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}

	result, err := s.documents.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoMetadata) GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments pages through documents newest first.
func (s *MongoMetadata) ListDocuments(ctx context.Context, limit, offset int) ([]models.Document, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.documents.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	cursor, err := s.documents.Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// FindByHash returns an existing live document with the same content hash,
// used to short-circuit duplicate uploads.
func (s *MongoMetadata) FindByHash(ctx context.Context, hash string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{
		"file_hash": hash,
		"status":    bson.M{"$in": []string{models.StatusCompleted, models.StatusProcessing, models.StatusPending}},
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *MongoMetadata) SetStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMessage != "" {
		set["error_message"] = errorMessage
	} else if status == models.StatusProcessing {
		// A retry clears the previous failure message.
		set["error_message"] = ""
	}
	if status == models.StatusCompleted || status == models.StatusFailed {
		set["processed_at"] = time.Now()
	}

	result, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoMetadata) ReplaceChunks(ctx context.Context, docID primitive.ObjectID, chunks []models.Chunk) error {
	now := time.Now()
	rows := make([]interface{}, 0, len(chunks))
	for i := range chunks {
		chunk := chunks[i]
		chunk.DocumentID = docID
		chunk.CreatedAt = now
		if s.compress && chunk.Content != "" {
			compressed, algorithm, err := utils.CompressText(chunk.Content)
			if err == nil && algorithm != utils.CompressionNone {
				chunk.Compressed = compressed
				chunk.Compression = string(algorithm)
				chunk.Content = ""
			}
		}
		rows = append(rows, chunk)
	}

	swap := func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.chunks.DeleteMany(sc, bson.M{"document_id": docID}); err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			if _, err := s.chunks.InsertMany(sc, rows); err != nil {
				return nil, err
			}
		}
		_, err := s.documents.UpdateOne(sc, bson.M{"_id": docID}, bson.M{"$set": bson.M{
			"chunk_count": len(rows),
			"updated_at":  time.Now(),
		}})
		return nil, err
	}

	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, swap)
	if err != nil && isNoTransactionSupport(err) {
		// Standalone deployments have no transaction support. The swap is
		// still invisible to readers there because they join against
		// document status, which stays processing until the swap finishes.
		logger.Warn("Transactions unavailable, replacing chunks without one", "document_id", docID.Hex())
		_, err = swap(mongo.NewSessionContext(ctx, session))
	}
	if err != nil {
		return fmt.Errorf("failed to replace chunks: %w", err)
	}
	return nil
}

// Code 20 is IllegalOperation, what standalone servers return for
// startTransaction.
func isNoTransactionSupport(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 20
	}
	return false
}

func (s *MongoMetadata) GetChunks(ctx context.Context, docID primitive.ObjectID) ([]models.Chunk, error) {
	cursor, err := s.chunks.Find(ctx, bson.M{"document_id": docID},
		options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}
	return decompressChunks(chunks)
}

func (s *MongoMetadata) GetChunksByID(ctx context.Context, chunkIDs []string) ([]models.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.chunks.Find(ctx, bson.M{"chunk_id": bson.M{"$in": chunkIDs}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}
	return decompressChunks(chunks)
}

func decompressChunks(chunks []models.Chunk) ([]models.Chunk, error) {
	for i := range chunks {
		if len(chunks[i].Compressed) == 0 {
			continue
		}
		text, err := utils.DecompressText(chunks[i].Compressed, utils.CompressionAlgorithm(chunks[i].Compression))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %s: %w", chunks[i].ChunkID, err)
		}
		chunks[i].Content = text
		chunks[i].Compressed = nil
	}
	return chunks, nil
}

// AppendLog is best effort. Losing an audit row must never fail the
// pipeline step that produced it.
func (s *MongoMetadata) AppendLog(ctx context.Context, docID primitive.ObjectID, status, step, message string) {
	_, err := s.logs.InsertOne(ctx, models.ProcessingLog{
		DocumentID: docID,
		Status:     status,
		Step:       step,
		Message:    message,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		logger.Error("Failed to append processing log",
			"document_id", docID.Hex(), "status", status, "error", err)
	}
}

func (s *MongoMetadata) GetLogs(ctx context.Context, docID primitive.ObjectID) ([]models.ProcessingLog, error) {
	cursor, err := s.logs.Find(ctx, bson.M{"document_id": docID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.ProcessingLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *MongoMetadata) StaleProcessing(ctx context.Context, threshold time.Duration) ([]models.Document, error) {
	cutoff := time.Now().Add(-threshold)
	cursor, err := s.documents.Find(ctx, bson.M{
		"status":     models.StatusProcessing,
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoMetadata) DocumentStatuses(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	if len(ids) == 0 {
		return map[primitive.ObjectID]string{}, nil
	}
	cursor, err := s.documents.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"status": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	statuses := make(map[primitive.ObjectID]string, len(ids))
	for cursor.Next(ctx) {
		var row struct {
			ID     primitive.ObjectID `bson:"_id"`
			Status string             `bson:"status"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		statuses[row.ID] = row.Status
	}
	return statuses, cursor.Err()
}

// DocumentRefs returns the status plus citation fields for each document.
func (s *MongoMetadata) DocumentRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]DocumentRef, error) {
	if len(ids) == 0 {
		return map[primitive.ObjectID]DocumentRef{}, nil
	}
	cursor, err := s.documents.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"status": 1, "original_name": 1, "file_path": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	refs := make(map[primitive.ObjectID]DocumentRef, len(ids))
	for cursor.Next(ctx) {
		var row struct {
			ID           primitive.ObjectID `bson:"_id"`
			Status       string             `bson:"status"`
			OriginalName string             `bson:"original_name"`
			FilePath     string             `bson:"file_path"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		refs[row.ID] = DocumentRef{
			Status:   row.Status,
			Filename: row.OriginalName,
			FilePath: row.FilePath,
		}
	}
	return refs, cursor.Err()
}

// FilterDocumentIDs resolves a retrieval filter to concrete document ids.
// An empty filter resolves to nil (unrestricted); a filter matching nothing
// resolves to an empty non-nil slice.
func (s *MongoMetadata) FilterDocumentIDs(ctx context.Context, filter *Filter) ([]primitive.ObjectID, error) {
	if filter.Empty() {
		return nil, nil
	}

	query := bson.M{}
	if len(filter.DocumentIDs) > 0 {
		query["_id"] = bson.M{"$in": filter.DocumentIDs}
	}
	if len(filter.FileTypes) > 0 {
		query["file_type"] = bson.M{"$in": filter.FileTypes}
	}

	cursor, err := s.documents.Find(ctx, query,
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	ids := []primitive.ObjectID{}
	for cursor.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cursor.Err()
}

// KeywordSearch runs the $text leg of hybrid retrieval against the chunks
// collection. Scores are normalized to [0, 1] by the best match. A non-nil
// docIDs slice restricts the search to those documents.
func (s *MongoMetadata) KeywordSearch(ctx context.Context, query string, limit int, docIDs []primitive.ObjectID) ([]Match, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	textFilter := bson.M{"$text": bson.M{"$search": query}}
	if len(docIDs) > 0 {
		textFilter["document_id"] = bson.M{"$in": docIDs}
	}

	cursor, err := s.chunks.Find(ctx,
		textFilter,
		options.Find().
			SetProjection(bson.M{
				"chunk_id":    1,
				"document_id": 1,
				"score":       bson.M{"$meta": "textScore"},
			}).
			SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []Match
	var best float64
	for cursor.Next(ctx) {
		var row struct {
			ChunkID    string             `bson:"chunk_id"`
			DocumentID primitive.ObjectID `bson:"document_id"`
			Score      float64            `bson:"score"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		if row.Score > best {
			best = row.Score
		}
		matches = append(matches, Match{
			ChunkID:    row.ChunkID,
			DocumentID: row.DocumentID,
			Score:      row.Score,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	if best > 0 {
		for i := range matches {
			matches[i].Score /= best
		}
	}
	return matches, nil
}

// Stats counts documents and chunks. The vector count lives in the
// vector store and is filled in by the caller.
func (s *MongoMetadata) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int64{}}

	var err error
	stats.Documents, err = s.documents.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	stats.Chunks, err = s.chunks.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	cursor, err := s.documents.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		stats.ByStatus[row.Status] = row.Count
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	if completed := stats.ByStatus[models.StatusCompleted]; completed > 0 {
		stats.AverageChunks = float64(stats.Chunks) / float64(completed)
	}
	return stats, nil
}
