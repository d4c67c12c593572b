package main

import (
	"context"
	"log"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/embedder"
	"document-rag-platform/internal/loader"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/orchestrator"
	"document-rag-platform/internal/queue"
	"document-rag-platform/internal/store"
	"document-rag-platform/internal/telemetry"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("document-rag-worker")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	metadata := store.NewMongoMetadata(mongoClient, cfg)
	vectors := store.NewMongoVector(mongoClient, cfg)
	registry := loader.NewRegistry()

	provider, err := embedder.NewProvider(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embeddings provider:", err)
	}
	embedService := embedder.NewService(provider, metrics, cfg)

	pipeline := orchestrator.New(metadata, vectors, registry, embedService, metrics, cfg)

	queueClient := queue.NewClient(cfg)
	defer queueClient.Close()

	reconciler := orchestrator.NewReconciler(metadata, vectors, queueClient, metrics, cfg)
	if err := reconciler.Start(); err != nil {
		log.Fatal("Failed to start reconciler:", err)
	}
	defer reconciler.Stop()

	server := asynq.NewServer(
		queue.RedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := queue.NewMux(queue.NewProcessor(pipeline))

	logger.Info("Starting worker",
		"concurrency", cfg.WorkerConcurrency,
		"reconcile_interval", cfg.ReconcileInterval.String())

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
