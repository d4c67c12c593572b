package routes

import (
	"context"
	"net/http"

	"document-rag-platform/internal/retrieval"
	"document-rag-platform/internal/store"
	"document-rag-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type queryRequest struct {
	Query       string   `json:"query" binding:"required"`
	TopK        int      `json:"top_k"`
	DocumentIDs []string `json:"document_ids"`
	FileTypes   []string `json:"file_types"`
}

// HandleQuery runs hybrid retrieval over the index.
func HandleQuery(engine *retrieval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Request must include a 'query' field", nil)
			return
		}

		filter := &store.Filter{FileTypes: req.FileTypes}
		for _, raw := range req.DocumentIDs {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				utils.RespondWithBadRequest(c, "Invalid document id in filter: "+raw, nil)
				return
			}
			filter.DocumentIDs = append(filter.DocumentIDs, id)
		}

		results, err := engine.Search(c.Request.Context(), req.Query, req.TopK, filter)
		if err != nil {
			utils.RespondWithInternalError(c, "Retrieval failed", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   req.Query,
			"count":   len(results),
			"results": results,
		})
	}
}

// StatsReader reports aggregate counts from the metadata store.
type StatsReader interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// VectorCounter reports the size of the similarity index.
type VectorCounter interface {
	Count(ctx context.Context) (int64, error)
}

// HandleStats reports index-wide counts across both stores.
func HandleStats(metadata StatsReader, vectors VectorCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := metadata.Stats(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to compute stats", nil)
			return
		}
		stats.Vectors, err = vectors.Count(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to compute stats", nil)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
