package queue

import (
	"context"
	"errors"
	"strings"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RedisOpt builds the asynq connection options from config. REDIS_URL may
// be a bare host:port or a redis:// URL.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	addr := cfg.RedisURL
	if strings.Contains(addr, "://") {
		if opt, err := asynq.ParseRedisURI(addr); err == nil {
			if clientOpt, ok := opt.(asynq.RedisClientOpt); ok {
				return clientOpt
			}
		}
	}
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Client enqueues pipeline work. It satisfies orchestrator.Requeuer.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(cfg *config.Config) *Client {
	opt := RedisOpt(cfg)
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// EnqueueProcess schedules a full pipeline run for the document. A
// duplicate enqueue while a run for the same document is still queued is
// treated as success; a conflict with an archived or completed task
// releases the id and enqueues a fresh run, so re-ingestion of a
// previously failed document is never silently dropped.
func (c *Client) EnqueueProcess(ctx context.Context, docID primitive.ObjectID) error {
	task, err := NewProcessTask(docID)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		released, rerr := c.releaseFinishedTask(docID.Hex())
		if rerr != nil {
			return rerr
		}
		if !released {
			logger.Debug("Document already queued", "document_id", docID.Hex())
			return nil
		}
		info, err = c.client.EnqueueContext(ctx, task)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Another enqueuer won the race after the release.
			logger.Debug("Document already queued", "document_id", docID.Hex())
			return nil
		}
	}
	if err != nil {
		return err
	}

	logger.Info("Enqueued document", "document_id", docID.Hex(),
		"queue", info.Queue, "task_id", info.ID)
	return nil
}

// releaseFinishedTask deletes the task holding the document's task id when
// it is no longer runnable. Asynq keeps the id reserved while the task
// exists in any state, including archived after a terminal failure.
// Returns true when the id was freed.
func (c *Client) releaseFinishedTask(taskID string) (bool, error) {
	ti, err := c.inspector.GetTaskInfo(ProcessQueue, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			// Already gone, the id is free.
			return true, nil
		}
		return false, err
	}

	switch ti.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		if err := c.inspector.DeleteTask(ProcessQueue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) Close() error {
	if err := c.inspector.Close(); err != nil {
		logger.Warn("Failed to close queue inspector", "error", err)
	}
	return c.client.Close()
}
