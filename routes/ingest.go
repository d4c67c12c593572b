package routes

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"document-rag-platform/internal/loader"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/storage"
	"document-rag-platform/internal/store"
	"document-rag-platform/models"
	"document-rag-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Enqueuer schedules a document for pipeline processing. Satisfied by
// queue.Client.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, docID primitive.ObjectID) error
}

// HandleUpload accepts a document, stores it on disk, records it as
// pending and enqueues pipeline processing. The response returns
// immediately with the document id as the job id.
func HandleUpload(metadata store.Metadata, files *storage.Manager, registry *loader.Registry, enqueue Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided; use multipart field 'file'", nil)
			return
		}
		defer file.Close()

		if ext := filepath.Ext(header.Filename); ext != "" && !registry.Supports(ext) {
			utils.RespondWithUnsupportedMedia(c, "Unsupported file format: "+ext)
			return
		}

		stored, err := files.Store(file, header)
		if err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		ctx := c.Request.Context()

		// Same bytes already ingested or in flight: return the existing
		// job instead of indexing a duplicate.
		if existing, err := metadata.FindByHash(ctx, stored.Hash); err == nil {
			files.Cleanup(stored.Path)
			c.JSON(http.StatusOK, gin.H{
				"message":     "Document already ingested",
				"document_id": existing.ID.Hex(),
				"status":      existing.Status,
				"duplicate":   true,
			})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			files.Cleanup(stored.Path)
			utils.RespondWithInternalError(c, "Duplicate check failed", nil)
			return
		}

		doc := &models.Document{
			Filename:     stored.SecureName,
			OriginalName: header.Filename,
			FilePath:     stored.Path,
			FileHash:     stored.Hash,
			FileSize:     stored.Size,
			FileType:     strings.ToLower(filepath.Ext(header.Filename)),
			Status:       models.StatusPending,
		}
		if err := metadata.InsertDocument(ctx, doc); err != nil {
			files.Cleanup(stored.Path)
			utils.RespondWithInternalError(c, "Failed to record document", nil)
			return
		}

		if err := enqueue.EnqueueProcess(ctx, doc.ID); err != nil {
			logger.Error("Failed to enqueue document", "document_id", doc.ID.Hex(), "error", err)
			utils.RespondWithInternalError(c, "Failed to enqueue processing", gin.H{
				"document_id": doc.ID.Hex(),
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":     "Document accepted for processing",
			"document_id": doc.ID.Hex(),
			"status":      doc.Status,
			"filename":    header.Filename,
			"size":        stored.Size,
		})
	}
}

// HandleStatus reports a document's ingestion state.
func HandleStatus(metadata store.Metadata) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		doc, err := metadata.GetDocument(c.Request.Context(), docID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to look up document", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":   doc.ID.Hex(),
			"filename":      doc.OriginalName,
			"status":        doc.Status,
			"error_message": doc.ErrorMessage,
			"chunk_count":   doc.ChunkCount,
			"created_at":    doc.CreatedAt,
			"updated_at":    doc.UpdatedAt,
			"processed_at":  doc.ProcessedAt,
		})
	}
}

// HandleList pages through documents newest first.
func HandleList(metadata store.Metadata) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntQuery(c, "limit", 20)
		offset := parseIntQuery(c, "offset", 0)

		docs, total, err := metadata.ListDocuments(c.Request.Context(), limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"total":     total,
			"limit":     limit,
			"offset":    offset,
			"documents": docs,
		})
	}
}

// HandleLogs returns the processing audit trail for a document.
func HandleLogs(metadata store.Metadata) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		if _, err := metadata.GetDocument(c.Request.Context(), docID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to look up document", nil)
			return
		}

		logs, err := metadata.GetLogs(c.Request.Context(), docID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load processing log", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"document_id": docID.Hex(), "entries": logs})
	}
}

// HandleChunks returns a document's stored chunks in order, for debugging
// and for clients that want the full extracted text back.
func HandleChunks(metadata store.Metadata) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		doc, err := metadata.GetDocument(c.Request.Context(), docID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to look up document", nil)
			return
		}
		if doc.Status != models.StatusCompleted {
			utils.RespondWithError(c, http.StatusConflict, "not_ready",
				"Document is not completed", gin.H{"status": doc.Status})
			return
		}

		chunks, err := metadata.GetChunks(c.Request.Context(), docID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load chunks", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"document_id": docID.Hex(),
			"chunk_count": len(chunks),
			"chunks":      chunks,
		})
	}
}

// HandleReingest requeues a completed or failed document for a full redo.
func HandleReingest(metadata store.Metadata, enqueue Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := parseDocumentID(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		doc, err := metadata.GetDocument(ctx, docID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to look up document", nil)
			return
		}
		if doc.Status == models.StatusProcessing {
			utils.RespondWithError(c, http.StatusConflict, "already_processing",
				"Document is currently being processed", nil)
			return
		}

		if err := metadata.SetStatus(ctx, docID, models.StatusPending, ""); err != nil {
			utils.RespondWithInternalError(c, "Failed to reset document", nil)
			return
		}
		metadata.AppendLog(ctx, docID, models.StatusPending, "api", "re-ingestion requested")

		if err := enqueue.EnqueueProcess(ctx, docID); err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue processing", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"document_id": docID.Hex(),
			"status":      models.StatusPending,
		})
	}
}

func parseDocumentID(c *gin.Context) (primitive.ObjectID, bool) {
	docID, err := primitive.ObjectIDFromHex(c.Param("documentID"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document id", nil)
		return primitive.NilObjectID, false
	}
	return docID, true
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
