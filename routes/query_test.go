package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"document-rag-platform/internal/store"

	"github.com/gin-gonic/gin"
)

type fakeStatsReader struct {
	stats *store.Stats
	err   error
}

func (f *fakeStatsReader) Stats(ctx context.Context) (*store.Stats, error) {
	return f.stats, f.err
}

type fakeVectorCounter struct {
	count int64
	err   error
}

func (f *fakeVectorCounter) Count(ctx context.Context) (int64, error) {
	return f.count, f.err
}

func TestHandleStatsMergesVectorCount(t *testing.T) {
	gin.SetMode(gin.TestMode)

	metadata := &fakeStatsReader{stats: &store.Stats{
		Documents: 3,
		Chunks:    42,
		ByStatus:  map[string]int64{"completed": 3},
	}}
	vectors := &fakeVectorCounter{count: 41}

	router := gin.New()
	router.GET("/stats", HandleStats(metadata, vectors))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got store.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Documents != 3 || got.Chunks != 42 {
		t.Fatalf("got documents=%d chunks=%d, want 3 and 42", got.Documents, got.Chunks)
	}
	if got.Vectors != 41 {
		t.Fatalf("vectors = %d, want 41", got.Vectors)
	}
}

func TestHandleStatsVectorCountFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	metadata := &fakeStatsReader{stats: &store.Stats{ByStatus: map[string]int64{}}}
	vectors := &fakeVectorCounter{err: errors.New("index unavailable")}

	router := gin.New()
	router.GET("/stats", HandleStats(metadata, vectors))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleQueryRejectsBadDocumentID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/query", HandleQuery(nil))

	body := `{"query":"tax policy","document_ids":["not-a-hex-id"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
