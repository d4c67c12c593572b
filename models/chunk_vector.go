package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChunkVector is a denormalized embedding row for $vectorSearch.
// Keeping a separate collection keeps the similarity index off the
// metadata collections; writes are idempotent keyed by chunk_id.
type ChunkVector struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty"`
	DocumentID primitive.ObjectID     `bson:"document_id"`
	ChunkID    string                 `bson:"chunk_id"`
	Index      int                    `bson:"chunk_index"`
	Vector     []float32              `bson:"vector"`
	Metadata   map[string]interface{} `bson:"metadata,omitempty"`
	CreatedAt  time.Time              `bson:"created_at"`
}
