package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is one bounded segment of a document's extracted text. Rows are
// immutable once written; re-ingestion supersedes the whole set atomically.
// ChunkID (not the Mongo _id) is the key shared with the vector collection.
// When compression is on, Content is empty at rest and the text lives in
// Compressed; Keywords stay plaintext so the $text index keeps working.
type Chunk struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"-"`
	DocumentID  primitive.ObjectID     `bson:"document_id" json:"document_id"`
	ChunkID     string                 `bson:"chunk_id" json:"chunk_id"`
	Index       int                    `bson:"chunk_index" json:"chunk_index"`
	Content     string                 `bson:"content,omitempty" json:"content"`
	Compressed  []byte                 `bson:"content_compressed,omitempty" json:"-"`
	Compression string                 `bson:"compression,omitempty" json:"-"`
	StartOffset int                    `bson:"start_offset" json:"start_offset"`
	EndOffset   int                    `bson:"end_offset" json:"end_offset"`
	Page        int                    `bson:"page,omitempty" json:"page,omitempty"`
	Keywords    []string               `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Metadata    map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
}
