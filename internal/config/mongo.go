package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	documentsCollection := db.Collection("documents")
	documentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "file_hash", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	}
	_, err := documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	chunksCollection := db.Collection("chunks")
	chunkIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "chunk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Text index backs the keyword leg of hybrid retrieval.
		{
			Keys:    bson.D{{Key: "content", Value: "text"}, {Key: "keywords", Value: "text"}},
			Options: options.Index().SetName("chunks_content_text"),
		},
	}
	_, err = chunksCollection.Indexes().CreateMany(context.Background(), chunkIndexes)
	if err != nil {
		return err
	}

	logsCollection := db.Collection("processing_logs")
	logIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	_, err = logsCollection.Indexes().CreateMany(context.Background(), logIndexes)
	if err != nil {
		return err
	}

	// The cosine similarity index on chunk_vectors.vector is an Atlas search
	// index and cannot be created through the driver; these cover the
	// reconciliation sweeps and deleteByDocument.
	vectorsCollection := db.Collection("chunk_vectors")
	vectorIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chunk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "document_id", Value: 1}}},
	}
	_, err = vectorsCollection.Indexes().CreateMany(context.Background(), vectorIndexes)
	if err != nil {
		return err
	}

	return nil
}
