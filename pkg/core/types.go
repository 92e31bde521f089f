package core

import (
	"time"
)

// ===== HEALTH TYPES =====

// HealthStatus represents the health state of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ComponentHealth is one component's contribution to a health report.
type ComponentHealth struct {
	Status  HealthStatus           `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// HealthReport aggregates component health for the service surface.
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// ===== DOCUMENT TYPES =====

// DocumentClass labels a parsed document and drives chunking-strategy choice.
type DocumentClass string

const (
	ClassExpenseDocument    DocumentClass = "expense_document"
	ClassFinancialStatement DocumentClass = "financial_statement"
	ClassContract           DocumentClass = "contract"
	ClassReport             DocumentClass = "report"
	ClassGeneralDocument    DocumentClass = "general_document"
)

// Page is one extracted page with its extraction provenance.
type Page struct {
	PageNumber       int    `json:"page_number"`
	Text             string `json:"text"`
	CharCount        int    `json:"char_count"`
	ExtractionMethod string `json:"extraction_method"`
}

// ParseResult is the parser's output. Text is the canonical field consumed
// downstream; Pages and ProcessingMethod are for traceability.
type ParseResult struct {
	Text             string                 `json:"text"`
	Pages            []Page                 `json:"pages,omitempty"`
	Class            DocumentClass          `json:"class"`
	OCRConfidence    float64                `json:"ocr_confidence,omitempty"`
	ProcessingMethod string                 `json:"processing_method"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ===== FRAGMENT TYPES =====

// Chunk is a contiguous slice of document text produced by the chunker,
// before embedding and persistence.
type Chunk struct {
	FragmentID       string `json:"fragment_id"`
	Content          string `json:"content"`
	ChunkIndex       int    `json:"chunk_index"`
	ChunkType        string `json:"chunk_type"`
	ParentFragmentID string `json:"parent_fragment_id,omitempty"`
	StartChar        int    `json:"start_char"`
	EndChar          int    `json:"end_char"`
	TokenCount       int    `json:"token_count,omitempty"`
	Section          string `json:"section,omitempty"`
}

// Fragment is the unit of retrieval persisted in the vector store.
type Fragment struct {
	FragmentID       string    `json:"fragment_id"`
	Tenant           string    `json:"tenant"`
	DocumentID       string    `json:"document_id"`
	Content          string    `json:"content"`
	Vector           []float64 `json:"vector,omitempty"`
	ChunkIndex       int       `json:"chunk_index"`
	ChunkType        string    `json:"chunk_type"`
	ParentFragmentID string    `json:"parent_fragment_id,omitempty"`
	StartChar        int       `json:"start_char"`
	EndChar          int       `json:"end_char"`

	// Typed expense attributes, copied from recognised caller metadata keys.
	Amount       float64 `json:"amount"`
	Category     string  `json:"category"`
	Merchant     string  `json:"merchant"`
	ExpenseDate  string  `json:"expense_date"`
	DocumentType string  `json:"document_type"`
	SourceURL    string  `json:"source_url"`

	// Remainder of caller metadata as one JSON scalar.
	MetadataJSON string    `json:"metadata_json,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ===== SEARCH TYPES =====

// AmountFilter restricts results by the typed amount column.
type AmountFilter struct {
	Op    string  `json:"op"` // one of = < <= > >=
	Value float64 `json:"value"`
}

// DateFilter restricts results by the typed expense_date column.
type DateFilter struct {
	Op    string `json:"op"` // one of after, before, on
	Value string `json:"value"`
}

// SearchFilters is the predicate set the vector store understands. Extra
// holds arbitrary metadata keys matched by JSON substring.
type SearchFilters struct {
	Category     string                 `json:"category,omitempty"`
	Merchant     string                 `json:"merchant,omitempty"`
	DocumentType string                 `json:"document_type,omitempty"`
	Amount       *AmountFilter          `json:"amount_filter,omitempty"`
	Date         *DateFilter            `json:"date_filter,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// IsZero reports whether no predicate is set.
func (f SearchFilters) IsZero() bool {
	return f.Category == "" && f.Merchant == "" && f.DocumentType == "" &&
		f.Amount == nil && f.Date == nil && len(f.Extra) == 0
}

// SearchResult is one scored fragment returned from retrieval.
type SearchResult struct {
	Fragment Fragment `json:"fragment"`
	Score    float64  `json:"score"`
	// Highlighted is Content with query terms wrapped in **...**; filled by
	// the post-processor, empty on raw store results.
	Highlighted string `json:"highlighted,omitempty"`
}

// SearchMetadata describes how a query was transformed and filtered.
type SearchMetadata struct {
	OriginalQuery         string        `json:"original_query"`
	EnhancedQuery         string        `json:"enhanced_query"`
	FiltersApplied        SearchFilters `json:"filters_applied"`
	TotalRawResults       int           `json:"total_raw_results"`
	PostProcessingEnabled bool          `json:"post_processing_enabled"`
	DeduplicationEnabled  bool          `json:"deduplication_enabled"`
	SearchMethod          string        `json:"search_method"`
}

// SearchEnvelope is the typed response of the query engine.
type SearchEnvelope struct {
	Query          string         `json:"query"`
	Results        []SearchResult `json:"results"`
	TotalResults   int            `json:"total_results"`
	ProcessingTime float64        `json:"processing_time_seconds"`
	SearchMetadata SearchMetadata `json:"search_metadata"`
}

// StoreStats summarises vector-store contents, optionally tenant-scoped.
type StoreStats struct {
	TotalChunks      int `json:"total_chunks"`
	UniqueDocuments  int `json:"unique_documents"`
	UniqueBusinesses int `json:"unique_businesses"`
}

// ===== JOB TYPES =====

// JobStatus is a state in the indexing-job state machine.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job priorities. Lower is more urgent.
const (
	PriorityHigh   = 1
	PriorityNormal = 2
	PriorityLow    = 3
)

// CompletedStage records when a progress stage finished.
type CompletedStage struct {
	Stage       string    `json:"stage"`
	CompletedAt time.Time `json:"completed_at"`
}

// JobProgress tracks where a job sits in the pipeline.
type JobProgress struct {
	Stage           string           `json:"stage"`
	Percentage      int              `json:"percentage"`
	StagesCompleted []CompletedStage `json:"stages_completed,omitempty"`
}

// IndexingJob is one unit of ingestion work, owned by the indexer while live.
type IndexingJob struct {
	JobID      string                 `json:"job_id"`
	Tenant     string                 `json:"tenant"`
	DocumentID string                 `json:"document_id"`
	SourcePath string                 `json:"source_path,omitempty"`
	SourceURL  string                 `json:"source_url,omitempty"`
	MimeType   string                 `json:"mime_type,omitempty"`
	Filename   string                 `json:"filename,omitempty"`
	Content    []byte                 `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Priority   int                    `json:"priority"`
	Status     JobStatus              `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Progress JobProgress `json:"progress"`

	ChunksCreated  int     `json:"chunks_created"`
	ProcessingTime float64 `json:"processing_time_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	RetryCount     int     `json:"retry_count"`
}

// QueueStatus is a point-in-time snapshot of the indexer's queues.
type QueueStatus struct {
	PendingJobs   int            `json:"pending_jobs"`
	ActiveJobs    int            `json:"active_jobs"`
	CompletedJobs int            `json:"completed_jobs"`
	FailedJobs    int            `json:"failed_jobs"`
	Metrics       IndexerMetrics `json:"metrics"`
}

// IndexerMetrics are the indexer's running counters, readable atomically.
type IndexerMetrics struct {
	TotalJobs             int        `json:"total_jobs"`
	TotalDocuments        int        `json:"total_documents"`
	TotalFragments        int        `json:"total_fragments"`
	TotalProcessingTime   float64    `json:"total_processing_time"`
	AverageProcessingTime float64    `json:"average_processing_time"`
	SuccessRate           float64    `json:"success_rate"`
	CacheHits             int        `json:"cache_hits"`
	CacheMisses           int        `json:"cache_misses"`
	LastProcessedAt       *time.Time `json:"last_processed_at,omitempty"`
}

// CacheEntry is a completed ingestion memoised by (tenant, content hash).
type CacheEntry struct {
	JobID          string    `json:"job_id"`
	DocumentID     string    `json:"document_id"`
	ChunksCreated  int       `json:"chunks_created"`
	ProcessingTime float64   `json:"processing_time"`
	CachedAt       time.Time `json:"cached_at"`
}
