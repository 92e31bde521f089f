// Package handlers implements the REST endpoints of the document indexing
// and search service.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finlex/docindexer/pkg/core"
	"github.com/finlex/docindexer/pkg/indexer"
	"github.com/finlex/docindexer/pkg/search"
	"github.com/finlex/docindexer/pkg/service"
)

// Handler exposes the service facade over HTTP.
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Info answers GET / with a service description.
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "docindexer",
		"description": "multi-tenant expense document indexing and semantic search",
		"endpoints": []string{
			"GET /health",
			"GET /stats",
			"POST /index",
			"POST /search",
			"GET /jobs/:id",
			"POST /jobs/retry",
			"GET /metrics",
		},
	})
}

// Health answers GET /health, 503 when any critical component is down.
func (h *Handler) Health(c *gin.Context) {
	report := h.svc.Health(c.Request.Context())

	status := http.StatusOK
	if report.Status == core.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Stats answers GET /stats with optional ?tenant= scoping.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), c.Query("tenant"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"timestamp": time.Now().UTC(),
	})
}

// IndexRequest is the POST /index body.
type IndexRequest struct {
	Tenant     string                 `json:"tenant"`
	DocumentID string                 `json:"document_id"`
	SourceURL  string                 `json:"source_url"`
	Content    []byte                 `json:"content,omitempty"`
	MimeType   string                 `json:"mime_type,omitempty"`
	Filename   string                 `json:"filename,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Priority   int                    `json:"priority,omitempty"`
}

// Index answers POST /index. Missing required fields yield a 400 naming
// them; a submission failure yields a 500 with a failed-job shape. Content
// already in the ingestion cache comes back completed immediately.
func (h *Handler) Index(c *gin.Context) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var missing []string
	if req.Tenant == "" {
		missing = append(missing, "tenant")
	}
	if req.SourceURL == "" && len(req.Content) == 0 {
		missing = append(missing, "source_url")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          "missing required fields",
			"missing_fields": missing,
		})
		return
	}

	ctx := core.WithTenantID(c.Request.Context(), req.Tenant)
	jobID, err := h.svc.Index(ctx, indexer.SubmitRequest{
		Tenant:     req.Tenant,
		DocumentID: req.DocumentID,
		SourceURL:  req.SourceURL,
		Content:    req.Content,
		MimeType:   req.MimeType,
		Filename:   req.Filename,
		Metadata:   req.Metadata,
		Priority:   req.Priority,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsValidationError(err) || errors.Is(err, core.ErrBadRequest) {
			status = http.StatusBadRequest
		}
		if core.IsShutdownError(err) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"job_id":  "",
			"status":  "failed",
			"message": err.Error(),
		})
		return
	}

	resp := gin.H{
		"job_id":    jobID,
		"status":    string(core.JobStatusPending),
		"tenant":    req.Tenant,
		"timestamp": time.Now().UTC(),
	}
	if job, jerr := h.svc.JobStatus(jobID); jerr == nil {
		status := job.Status
		if status == core.JobStatusProcessing {
			status = core.JobStatusPending
		}
		resp["status"] = string(status)
		resp["document_id"] = job.DocumentID
		resp["tenant"] = job.Tenant
		resp["chunks_created"] = job.ChunksCreated
		resp["processing_time"] = job.ProcessingTime
	}
	c.JSON(http.StatusOK, resp)
}

// Search answers POST /search with the full envelope.
func (h *Handler) Search(c *gin.Context) {
	var req search.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := core.WithTenantID(c.Request.Context(), req.Tenant)
	envelope, err := h.svc.Search(ctx, req)
	if err != nil {
		switch {
		case core.IsValidationError(err), errors.Is(err, core.ErrBadRequest), errors.Is(err, core.ErrTenantRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case core.IsTimeoutError(err):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, envelope)
}

// JobStatus answers GET /jobs/:id.
func (h *Handler) JobStatus(c *gin.Context) {
	job, err := h.svc.JobStatus(c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// RetryJobs answers POST /jobs/retry, requeueing every failed job.
func (h *Handler) RetryJobs(c *gin.Context) {
	n := h.svc.RetryFailedJobs()
	c.JSON(http.StatusOK, gin.H{
		"retried": n,
		"queue":   h.svc.QueueStatus(),
	})
}

// DeleteDocument answers DELETE /documents/:id.
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.svc.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}
