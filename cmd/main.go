package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/embedder"
	"document-rag-platform/internal/loader"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/queue"
	"document-rag-platform/internal/retrieval"
	"document-rag-platform/internal/storage"
	"document-rag-platform/internal/store"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/middleware"
	"document-rag-platform/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("document-rag-api")
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

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	metadata := store.NewMongoMetadata(mongoClient, cfg)
	vectors := store.NewMongoVector(mongoClient, cfg)

	files, err := storage.NewManager(cfg)
	if err != nil {
		log.Fatal("Failed to prepare file storage:", err)
	}
	registry := loader.NewRegistry()

	provider, err := embedder.NewProvider(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embeddings provider:", err)
	}
	embedService := embedder.NewService(provider, metrics, cfg)

	queueClient := queue.NewClient(cfg)
	defer queueClient.Close()

	engine := retrieval.New(metadata, vectors, embedService, metrics, cfg)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(redisClient, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	routes.SetupDocumentRoutes(router, metadata, files, registry, queueClient)
	routes.SetupQueryRoutes(router, engine, metadata, vectors)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
