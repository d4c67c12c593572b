package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/orchestrator"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const TaskProcessDocument = "document:process"

// ProcessQueue is the queue ingestion tasks run on.
const ProcessQueue = "critical"

type ProcessPayload struct {
	DocumentID string `json:"document_id"`
}

// NewProcessTask builds the ingestion task for a document. The document id
// doubles as the job id, so enqueueing the same document twice while a run
// is pending dedupes instead of racing.
func NewProcessTask(docID primitive.ObjectID) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessPayload{DocumentID: docID.Hex()})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.TaskID(docID.Hex()),
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(ProcessQueue),
	), nil
}

// Processor dispatches queued tasks into the pipeline.
type Processor struct {
	pipeline *orchestrator.Orchestrator
}

func NewProcessor(pipeline *orchestrator.Orchestrator) *Processor {
	return &Processor{pipeline: pipeline}
}

func (p *Processor) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	docID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("bad document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	logger.Info("Processing document task", "document_id", payload.DocumentID)

	if err := p.pipeline.Process(ctx, docID); err != nil {
		if orchestrator.IsTerminal(err) {
			// Retrying cannot fix these, drop the task.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// NewMux registers all task handlers.
func NewMux(processor *Processor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessDocument, processor.HandleProcessDocument)
	return mux
}
