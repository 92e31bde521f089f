package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
	"github.com/finlex/docindexer/pkg/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default(t.TempDir())
	cfg.Store.Backend = "sqlite"
	cfg.Store.DBPath = ":memory:"
	cfg.Embedder.Provider = "local"
	cfg.Embedder.VectorDimension = 64

	svc, err := service.New(cfg)
	require.NoError(t, err)

	srv := NewServer(cfg, svc)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var report core.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, core.HealthStatusHealthy, report.Status)
	assert.Contains(t, report.Components, "search_engine")
	assert.Contains(t, report.Components, "document_indexer")
}

func TestInfoEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docindexer")
}

func TestIndexValidation(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/index", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error         string   `json:"error"`
		MissingFields []string `json:"missing_fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"tenant", "source_url"}, resp.MissingFields)
}

func TestIndexThenJobStatusAndSearch(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/index", map[string]interface{}{
		"tenant":      "acme",
		"document_id": "r1",
		"content":     []byte("RECEIPT\nMerchant: Starbucks\nTotal Amount: $8.40\n"),
		"mime_type":   "text/plain",
		"filename":    "receipt.txt",
		"metadata":    map[string]interface{}{"merchant": "Starbucks", "amount": 8.40},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var submitted struct {
		JobID      string `json:"job_id"`
		Status     string `json:"status"`
		DocumentID string `json:"document_id"`
		Tenant     string `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.Contains(t, []string{"pending", "completed"}, submitted.Status)
	assert.Equal(t, "r1", submitted.DocumentID)
	assert.Equal(t, "acme", submitted.Tenant)
	require.NotEmpty(t, submitted.JobID)

	require.Eventually(t, func() bool {
		w := doJSON(t, srv, http.MethodGet, "/jobs/"+submitted.JobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var job core.IndexingJob
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status == core.JobStatusCompleted
	}, 10*time.Second, 25*time.Millisecond)

	w = doJSON(t, srv, http.MethodPost, "/search", map[string]interface{}{
		"query":  "starbucks receipt purchase",
		"tenant": "acme",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope core.SearchEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Results)
	assert.Equal(t, "r1", envelope.Results[0].Fragment.DocumentID)
}

func TestSearchValidation(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/search", map[string]interface{}{"query": "coffee"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/search", map[string]interface{}{"tenant": "acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobStatusNotFound(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/jobs/job_20240101_000000_deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryJobsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/jobs/retry", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"retried":0`)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/stats?tenant=acme", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats     service.Stats `json:"stats"`
		Timestamp time.Time     `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Stats.VectorStore)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Contains(t, w.Body.String(), "vector_store")
	assert.Contains(t, w.Body.String(), "document_indexer")
	assert.Contains(t, w.Body.String(), "document_cache")
}

func TestIndexCacheHitReturnsCompleted(t *testing.T) {
	srv := newTestServer(t)

	body := map[string]interface{}{
		"tenant":    "acme",
		"content":   []byte("EXPENSE NOTE\nClient dinner total $64.00\n"),
		"mime_type": "text/plain",
	}
	w := doJSON(t, srv, http.MethodPost, "/index", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	var firstDoc string
	require.Eventually(t, func() bool {
		w := doJSON(t, srv, http.MethodGet, "/jobs/"+first.JobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var job core.IndexingJob
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			return false
		}
		firstDoc = job.DocumentID
		return job.Status == core.JobStatusCompleted
	}, 10*time.Second, 25*time.Millisecond)

	w = doJSON(t, srv, http.MethodPost, "/index", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var second struct {
		JobID          string  `json:"job_id"`
		Status         string  `json:"status"`
		DocumentID     string  `json:"document_id"`
		ChunksCreated  int     `json:"chunks_created"`
		ProcessingTime float64 `json:"processing_time"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, "completed", second.Status)
	assert.Equal(t, firstDoc, second.DocumentID)
	assert.Greater(t, second.ChunksCreated, 0)
	assert.NotEqual(t, first.JobID, second.JobID)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
