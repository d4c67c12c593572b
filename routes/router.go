package routes

import (
	"document-rag-platform/internal/loader"
	"document-rag-platform/internal/retrieval"
	"document-rag-platform/internal/storage"
	"document-rag-platform/internal/store"

	"github.com/gin-gonic/gin"
)

// SetupDocumentRoutes registers the ingestion surface.
func SetupDocumentRoutes(router *gin.Engine, metadata store.Metadata, files *storage.Manager, registry *loader.Registry, enqueue Enqueuer) {
	documents := router.Group("/api/v1/documents")
	{
		documents.POST("", HandleUpload(metadata, files, registry, enqueue))
		documents.GET("", HandleList(metadata))
		documents.GET("/:documentID", HandleStatus(metadata))
		documents.GET("/:documentID/logs", HandleLogs(metadata))
		documents.GET("/:documentID/chunks", HandleChunks(metadata))
		documents.POST("/:documentID/reingest", HandleReingest(metadata, enqueue))
	}
}

// SetupQueryRoutes registers the retrieval surface.
func SetupQueryRoutes(router *gin.Engine, engine *retrieval.Engine, metadata store.Metadata, vectors store.Vector) {
	api := router.Group("/api/v1")
	{
		api.POST("/query", HandleQuery(engine))
		api.GET("/stats", HandleStats(metadata, vectors))
	}
}
