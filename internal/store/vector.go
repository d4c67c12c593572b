package store

import (
	"context"
	"math"
	"sort"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoVector implements Vector on the chunk_vectors collection. On Atlas
// it queries through $vectorSearch; elsewhere it falls back to an exact
// in-process cosine scan, which is fine for small and medium corpora.
type MongoVector struct {
	collection    *mongo.Collection
	atlasSearch   bool
	indexName     string
	numCandidates int
}

func NewMongoVector(client *mongo.Client, cfg *config.Config) *MongoVector {
	return &MongoVector{
		collection:    client.Database(cfg.DBName).Collection("chunk_vectors"),
		atlasSearch:   cfg.VectorSearchEnabled,
		indexName:     cfg.VectorIndexName,
		numCandidates: cfg.OversampleFactor * 50,
	}
}

// Upsert writes vectors keyed by chunk_id so retried and replayed jobs
// converge on the same rows.
func (s *MongoVector) Upsert(ctx context.Context, vectors []models.ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}

	batch := make([]mongo.WriteModel, 0, len(vectors))
	for _, v := range vectors {
		doc := bson.M{
			"document_id": v.DocumentID,
			"chunk_id":    v.ChunkID,
			"chunk_index": v.Index,
			"vector":      v.Vector,
			"created_at":  time.Now(),
		}
		if len(v.Metadata) > 0 {
			doc["metadata"] = v.Metadata
		}
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"chunk_id": v.ChunkID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	_, err := s.collection.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *MongoVector) DeleteByDocument(ctx context.Context, docID primitive.ObjectID) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"document_id": docID})
	return err
}

func (s *MongoVector) CountByDocument(ctx context.Context, docID primitive.ObjectID) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"document_id": docID})
}

func (s *MongoVector) Count(ctx context.Context) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{})
}

func (s *MongoVector) DocumentIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	raw, err := s.collection.Distinct(ctx, "document_id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MongoVector) Search(ctx context.Context, queryVector []float32, limit int, docIDs []primitive.ObjectID) ([]Match, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return nil, nil
	}
	if s.atlasSearch {
		return s.atlasVectorSearch(ctx, queryVector, limit, docIDs)
	}
	return s.scanSearch(ctx, queryVector, limit, docIDs)
}

func (s *MongoVector) atlasVectorSearch(ctx context.Context, queryVector []float32, limit int, docIDs []primitive.ObjectID) ([]Match, error) {
	numCandidates := s.numCandidates
	if numCandidates < limit*4 {
		numCandidates = limit * 4
	}

	search := bson.M{
		"index":         s.indexName,
		"path":          "vector",
		"queryVector":   queryVector,
		"numCandidates": numCandidates,
		"limit":         limit,
	}
	if len(docIDs) > 0 {
		// Pushed down; document_id must be a filter field on the index.
		search["filter"] = bson.M{"document_id": bson.M{"$in": docIDs}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.M{
			"chunk_id":    1,
			"document_id": 1,
			"score":       bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []Match
	for cursor.Next(ctx) {
		var row struct {
			ChunkID    string             `bson:"chunk_id"`
			DocumentID primitive.ObjectID `bson:"document_id"`
			Score      float64            `bson:"score"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			ChunkID:    row.ChunkID,
			DocumentID: row.DocumentID,
			// Atlas reports (1 + cosine) / 2 for cosine indexes.
			Score: row.Score*2 - 1,
		})
	}
	return matches, cursor.Err()
}

func (s *MongoVector) scanSearch(ctx context.Context, queryVector []float32, limit int, docIDs []primitive.ObjectID) ([]Match, error) {
	filter := bson.M{}
	if len(docIDs) > 0 {
		filter["document_id"] = bson.M{"$in": docIDs}
	}
	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"chunk_id": 1, "document_id": 1, "vector": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []Match
	for cursor.Next(ctx) {
		var row models.ChunkVector
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		score, ok := CosineSimilarity(queryVector, row.Vector)
		if !ok {
			continue
		}
		matches = append(matches, Match{
			ChunkID:    row.ChunkID,
			DocumentID: row.DocumentID,
			Score:      score,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. The
// second return is false for mismatched dimensions or zero vectors.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
