package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Processing status values for documents. Transitions are owned by the
// indexing orchestrator; nothing else writes the status field.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is the metadata record for an ingested file. The documents
// collection is the source of truth for ingestion state; the vector
// collection is a derived index.
type Document struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Filename     string                 `bson:"filename" json:"filename"`
	OriginalName string                 `bson:"original_name" json:"original_name"`
	FilePath     string                 `bson:"file_path" json:"file_path"`
	FileHash     string                 `bson:"file_hash,omitempty" json:"-"`
	FileSize     int64                  `bson:"file_size" json:"file_size"`
	FileType     string                 `bson:"file_type" json:"file_type"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Status       string                 `bson:"status" json:"status"`
	ErrorMessage string                 `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount   int                    `bson:"chunk_count" json:"chunk_count"`
	CreatedAt    time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `bson:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time             `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}
