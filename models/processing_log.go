package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProcessingLog is an append-only audit record of status transitions and
// errors for a document. Entries are never mutated.
type ProcessingLog struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DocumentID primitive.ObjectID `bson:"document_id" json:"document_id"`
	Status     string             `bson:"status" json:"status"`
	Step       string             `bson:"step,omitempty" json:"step,omitempty"`
	Message    string             `bson:"message,omitempty" json:"message,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
