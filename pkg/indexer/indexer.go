package indexer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 30 * time.Second
)

// SubmitRequest describes one document to ingest. Exactly one of Content,
// SourceURL, or SourcePath must be set.
type SubmitRequest struct {
	Tenant     string
	DocumentID string
	SourcePath string
	SourceURL  string
	Content    []byte
	MimeType   string
	Filename   string
	Metadata   map[string]interface{}
	Priority   int
}

// Indexer runs the parse-chunk-embed-store pipeline over a worker pool fed by
// a priority queue.
type Indexer struct {
	parser   core.Parser
	chunker  core.Chunker
	embedder core.Embedder
	store    core.VectorStore
	fetcher  core.ObjectFetcher
	cfg      config.IndexerConfig

	queue *jobQueue
	cache *contentCache

	mu        sync.Mutex
	jobs      map[string]*core.IndexingJob
	failures  map[string]*failureRecord
	active    int
	completed int
	failed    int
	metrics   core.IndexerMetrics

	workers  sync.WaitGroup
	shutdown bool

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New builds an indexer and starts its worker pool.
func New(parser core.Parser, chunker core.Chunker, embedder core.Embedder, store core.VectorStore, fetcher core.ObjectFetcher, cfg config.IndexerConfig) *Indexer {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.ChunkBatchSize <= 0 {
		cfg.ChunkBatchSize = 100
	}
	if cfg.ProcessingTimeoutSeconds <= 0 {
		cfg.ProcessingTimeoutSeconds = 300
	}

	idx := &Indexer{
		parser:   parser,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		fetcher:  fetcher,
		cfg:      cfg,
		queue:    newJobQueue(),
		cache:    newContentCache(time.Duration(cfg.CacheTTLSeconds) * time.Second),
		jobs:     make(map[string]*core.IndexingJob),
		failures: make(map[string]*failureRecord),
		sleep:    time.Sleep,
	}

	for i := 0; i < cfg.MaxWorkers; i++ {
		idx.workers.Add(1)
		go idx.worker()
	}
	log.Printf("[INFO] indexer started with %d workers", cfg.MaxWorkers)
	return idx
}

func (idx *Indexer) worker() {
	defer idx.workers.Done()
	for {
		job, ok := idx.queue.pop()
		if !ok {
			return
		}
		queueDepth.Set(float64(idx.queue.len()))
		idx.runJob(job)
	}
}

// Submit validates the request, registers a pending job, and enqueues it.
// When the content was already ingested for this tenant and the cache entry
// is fresh, a completed job is synthesised without enqueueing anything.
func (idx *Indexer) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Tenant == "" {
		req.Tenant = core.GetTenantID(ctx)
	}
	job, err := idx.newJob(req)
	if err != nil {
		return "", err
	}

	idx.mu.Lock()
	if idx.shutdown {
		idx.mu.Unlock()
		return "", core.ErrShutdown
	}
	if len(req.Content) > 0 {
		if entry, ok := idx.cache.get(req.Tenant, hashContent(req.Content)); ok {
			idx.completeFromCacheLocked(job, entry)
			idx.mu.Unlock()
			cacheHits.Inc()
			jobsProcessed.WithLabelValues("completed").Inc()
			log.Printf("[INFO] job %s served from content cache at submit (original job %s)", job.JobID, entry.JobID)
			return job.JobID, nil
		}
	}
	idx.jobs[job.JobID] = job
	idx.metrics.TotalJobs++
	idx.mu.Unlock()

	if !idx.queue.push(job) {
		return "", core.ErrShutdown
	}
	queueDepth.Set(float64(idx.queue.len()))
	log.Printf("[INFO] queued job %s (tenant %s, document %s, priority %d)",
		job.JobID, job.Tenant, job.DocumentID, job.Priority)
	return job.JobID, nil
}

func (idx *Indexer) newJob(req SubmitRequest) (*core.IndexingJob, error) {
	if req.Tenant == "" {
		return nil, core.ErrTenantRequired
	}
	if len(req.Content) == 0 && req.SourceURL == "" && req.SourcePath == "" {
		return nil, core.WrapError(core.ErrBadRequest, nil, "no content, source_url, or source_path")
	}

	now := time.Now().UTC()
	documentID := req.DocumentID
	if documentID == "" {
		source := req.SourcePath
		if source == "" {
			source = req.SourceURL
		}
		sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%d", source, req.Tenant, now.UnixNano())))
		documentID = hex.EncodeToString(sum[:])
	}

	priority := req.Priority
	if priority < core.PriorityHigh || priority > core.PriorityLow {
		priority = core.PriorityNormal
	}

	return &core.IndexingJob{
		JobID:      newJobID(now),
		Tenant:     req.Tenant,
		DocumentID: documentID,
		SourcePath: req.SourcePath,
		SourceURL:  req.SourceURL,
		MimeType:   req.MimeType,
		Filename:   req.Filename,
		Content:    req.Content,
		Metadata:   req.Metadata,
		Priority:   priority,
		Status:     core.JobStatusPending,
		CreatedAt:  now,
		Progress:   core.JobProgress{Stage: "pending", Percentage: 0},
	}, nil
}

func newJobID(now time.Time) string {
	return fmt.Sprintf("job_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

type failureRecord struct {
	err      error
	requeues int
}

// completeFromCacheLocked registers job as completed with the identity of the
// cached ingestion. Caller holds idx.mu.
func (idx *Indexer) completeFromCacheLocked(job *core.IndexingJob, entry core.CacheEntry) {
	now := time.Now().UTC()
	job.Status = core.JobStatusCompleted
	job.DocumentID = entry.DocumentID
	job.ChunksCreated = entry.ChunksCreated
	job.ProcessingTime = entry.ProcessingTime
	job.StartedAt = &now
	job.CompletedAt = &now
	idx.setStageLocked(job, "completed", 100)
	idx.jobs[job.JobID] = job
	idx.completed++
	idx.metrics.TotalJobs++
	idx.metrics.CacheHits++
	idx.metrics.LastProcessedAt = &now
}

// SubmitDirectory walks dir and submits every file with a supported
// extension. Unsupported files are skipped with a warning.
func (idx *Indexer) SubmitDirectory(ctx context.Context, dir, tenant string, priority int) ([]string, error) {
	var jobIDs []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		if !idx.supportsFile(name) {
			log.Printf("[WARN] skipping unsupported file %s", path)
			return nil
		}
		jobID, err := idx.Submit(ctx, SubmitRequest{
			Tenant:     tenant,
			SourcePath: path,
			Content:    data,
			Filename:   name,
			Priority:   priority,
		})
		if err != nil {
			return err
		}
		jobIDs = append(jobIDs, jobID)
		return nil
	})
	if err != nil {
		return jobIDs, core.WrapErrorWithContext(core.ErrInternal, err, "walk %s", dir)
	}
	return jobIDs, nil
}

func (idx *Indexer) supportsFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp", ".webp",
		".docx", ".txt", ".csv", ".json", ".html", ".htm":
		return true
	}
	return false
}

// ProcessBatch runs the given requests synchronously, bounded by the worker
// limit, and returns the finished jobs in request order.
func (idx *Indexer) ProcessBatch(ctx context.Context, reqs []SubmitRequest) ([]*core.IndexingJob, error) {
	jobs := make([]*core.IndexingJob, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	limit := idx.cfg.MaxWorkers
	if !idx.cfg.EnableParallelProcessing {
		limit = 1
	}
	g.SetLimit(limit)

	for i, req := range reqs {
		g.Go(func() error {
			job, err := idx.newJob(req)
			if err != nil {
				return err
			}
			idx.mu.Lock()
			idx.jobs[job.JobID] = job
			idx.metrics.TotalJobs++
			idx.mu.Unlock()
			idx.runJob(job)
			jobs[i] = job
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return jobs, err
	}
	return jobs, nil
}

func (idx *Indexer) runJob(job *core.IndexingJob) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(idx.cfg.ProcessingTimeoutSeconds)*time.Second)
	defer cancel()

	idx.mu.Lock()
	idx.active++
	started := time.Now().UTC()
	job.Status = core.JobStatusProcessing
	job.StartedAt = &started
	idx.mu.Unlock()

	err := idx.process(ctx, job)

	elapsed := time.Since(started)
	finished := time.Now().UTC()

	idx.mu.Lock()
	idx.active--
	job.CompletedAt = &finished
	job.ProcessingTime = elapsed.Seconds()
	if err != nil {
		job.Status = core.JobStatusFailed
		job.ErrorMessage = err.Error()
		idx.setStageLocked(job, "failed", job.Progress.Percentage)
		idx.failed++
		rec := idx.failures[job.JobID]
		if rec == nil {
			rec = &failureRecord{}
			idx.failures[job.JobID] = rec
		}
		rec.err = err
		jobsProcessed.WithLabelValues("failed").Inc()
		log.Printf("[ERROR] job %s failed after %.2fs: %v", job.JobID, elapsed.Seconds(), err)
	} else {
		job.Status = core.JobStatusCompleted
		idx.setStageLocked(job, "completed", 100)
		delete(idx.failures, job.JobID)
		idx.completed++
		idx.metrics.TotalDocuments++
		idx.metrics.TotalFragments += job.ChunksCreated
		fragmentsIndexed.Add(float64(job.ChunksCreated))
		jobsProcessed.WithLabelValues("completed").Inc()
		log.Printf("[INFO] job %s completed: %d chunks in %.2fs", job.JobID, job.ChunksCreated, elapsed.Seconds())
	}
	idx.metrics.TotalProcessingTime += elapsed.Seconds()
	done := idx.completed + idx.failed
	if done > 0 {
		idx.metrics.AverageProcessingTime = idx.metrics.TotalProcessingTime / float64(done)
		idx.metrics.SuccessRate = float64(idx.completed) / float64(done)
	}
	idx.metrics.LastProcessedAt = &finished
	idx.mu.Unlock()

	jobDuration.Observe(elapsed.Seconds())
}

// process obtains content, consults the cache, then runs the pipeline with
// transient-error retries.
func (idx *Indexer) process(ctx context.Context, job *core.IndexingJob) error {
	content, mimeType, err := idx.obtainContent(ctx, job)
	if err != nil {
		return err
	}

	hash := hashContent(content)
	if entry, ok := idx.cache.get(job.Tenant, hash); ok {
		idx.mu.Lock()
		job.DocumentID = entry.DocumentID
		job.ChunksCreated = entry.ChunksCreated
		idx.metrics.CacheHits++
		idx.mu.Unlock()
		cacheHits.Inc()
		log.Printf("[INFO] job %s served from content cache (original job %s)", job.JobID, entry.JobID)
		return nil
	}
	idx.mu.Lock()
	idx.metrics.CacheMisses++
	idx.mu.Unlock()
	cacheMisses.Inc()

	maxRetries := idx.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = idx.pipeline(ctx, job, content, mimeType)
		if lastErr == nil {
			elapsed := 0.0
			if job.StartedAt != nil {
				elapsed = time.Since(*job.StartedAt).Seconds()
			}
			idx.cache.put(job.Tenant, hash, core.CacheEntry{
				JobID:          job.JobID,
				DocumentID:     job.DocumentID,
				ChunksCreated:  job.ChunksCreated,
				ProcessingTime: elapsed,
				CachedAt:       time.Now().UTC(),
			})
			return nil
		}
		if !core.IsTransient(lastErr) || attempt >= maxRetries {
			break
		}
		idx.mu.Lock()
		job.RetryCount++
		idx.mu.Unlock()
		wait := fullJitterBackoff(attempt)
		log.Printf("[WARN] job %s attempt %d failed, retrying in %s: %v", job.JobID, attempt+1, wait, lastErr)
		idx.sleep(wait)
		if ctx.Err() != nil {
			return core.WrapError(core.ErrTimeout, ctx.Err(), "processing deadline")
		}
	}
	if core.IsTransient(lastErr) {
		return core.WrapErrorWithContext(core.ErrRetriesExhausted, lastErr, "%d attempts", maxRetries+1)
	}
	return lastErr
}

func (idx *Indexer) obtainContent(ctx context.Context, job *core.IndexingJob) ([]byte, string, error) {
	if len(job.Content) > 0 {
		return job.Content, job.MimeType, nil
	}
	if job.SourceURL != "" {
		if idx.fetcher == nil {
			return nil, "", core.WrapError(core.ErrInternal, nil, "no fetcher configured for source_url jobs")
		}
		data, mimeType, err := idx.fetcher.Fetch(ctx, job.SourceURL)
		if err != nil {
			return nil, "", err
		}
		if job.MimeType != "" {
			mimeType = job.MimeType
		}
		return data, mimeType, nil
	}
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return nil, "", core.WrapErrorWithContext(core.ErrBadRequest, err, "read %s", job.SourcePath)
	}
	return data, job.MimeType, nil
}

func (idx *Indexer) pipeline(ctx context.Context, job *core.IndexingJob, content []byte, mimeType string) error {
	idx.setStage(job, "parsing", 10)
	filename := job.Filename
	if filename == "" {
		filename = filepath.Base(job.SourcePath)
		if filename == "." || filename == "" {
			filename = filepath.Base(job.SourceURL)
		}
	}
	parsed, err := idx.parser.Parse(ctx, content, mimeType, filename)
	if err != nil {
		return err
	}
	idx.setStage(job, "parsing", 30)

	idx.setStage(job, "chunking", 40)
	chunks, err := idx.chunker.Chunk(ctx, parsed.Text, job.DocumentID, parsed.Class)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return core.WrapErrorWithContext(core.ErrEmptyContent, nil, "document %s produced no chunks", job.DocumentID)
	}
	idx.setStage(job, "chunking", 60)

	idx.setStage(job, "indexing", 80)
	for start := 0; start < len(chunks); start += idx.cfg.ChunkBatchSize {
		end := start + idx.cfg.ChunkBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}
		vectors, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return core.WrapErrorWithContext(core.ErrInternal, nil,
				"embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		fragments := buildFragments(job, parsed, batch, vectors)
		if _, err := idx.store.Upsert(ctx, fragments); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	job.ChunksCreated = len(chunks)
	idx.mu.Unlock()
	return nil
}

// buildFragments copies recognised metadata keys into the typed columns and
// serialises the remainder into one JSON blob.
func buildFragments(job *core.IndexingJob, parsed *core.ParseResult, chunks []core.Chunk, vectors [][]float64) []core.Fragment {
	documentType := string(parsed.Class)
	amount := 0.0
	category, merchant, expenseDate := "", "", ""
	rest := make(map[string]interface{})

	for key, value := range job.Metadata {
		switch key {
		case "amount":
			amount = toFloat(value)
		case "category":
			category = fmt.Sprintf("%v", value)
		case "merchant", "vendor":
			merchant = fmt.Sprintf("%v", value)
		case "expense_date", "date":
			expenseDate = fmt.Sprintf("%v", value)
		case "document_type":
			documentType = fmt.Sprintf("%v", value)
		default:
			rest[key] = value
		}
	}

	metadataJSON := ""
	if len(rest) > 0 {
		if buf, err := json.Marshal(rest); err == nil {
			metadataJSON = string(buf)
		}
	}

	now := time.Now().UTC()
	fragments := make([]core.Fragment, len(chunks))
	for i, ch := range chunks {
		fragments[i] = core.Fragment{
			FragmentID:       ch.FragmentID,
			Tenant:           job.Tenant,
			DocumentID:       job.DocumentID,
			Content:          ch.Content,
			Vector:           vectors[i],
			ChunkIndex:       ch.ChunkIndex,
			ChunkType:        ch.ChunkType,
			ParentFragmentID: ch.ParentFragmentID,
			StartChar:        ch.StartChar,
			EndChar:          ch.EndChar,
			Amount:           amount,
			Category:         category,
			Merchant:         merchant,
			ExpenseDate:      expenseDate,
			DocumentType:     documentType,
			SourceURL:        job.SourceURL,
			MetadataJSON:     metadataJSON,
			CreatedAt:        now,
		}
	}
	return fragments
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(v), "$"), 64)
		return f
	default:
		return 0
	}
}

func fullJitterBackoff(attempt int) time.Duration {
	ceiling := float64(backoffBase) * math.Pow(2, float64(attempt))
	if ceiling > float64(backoffCap) {
		ceiling = float64(backoffCap)
	}
	return time.Duration(rand.Float64() * ceiling)
}

func (idx *Indexer) setStage(job *core.IndexingJob, stage string, pct int) {
	idx.mu.Lock()
	idx.setStageLocked(job, stage, pct)
	idx.mu.Unlock()
}

func (idx *Indexer) setStageLocked(job *core.IndexingJob, stage string, pct int) {
	if job.Progress.Stage != stage && job.Progress.Stage != "" {
		job.Progress.StagesCompleted = append(job.Progress.StagesCompleted, core.CompletedStage{
			Stage:       job.Progress.Stage,
			CompletedAt: time.Now().UTC(),
		})
	}
	job.Progress.Stage = stage
	job.Progress.Percentage = pct
}

// JobStatus returns a snapshot of a job.
func (idx *Indexer) JobStatus(jobID string) (*core.IndexingJob, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	job, ok := idx.jobs[jobID]
	if !ok {
		return nil, core.WrapErrorWithContext(core.ErrJobNotFound, nil, "%s", jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

// QueueStatus reports queue depth and running counters.
func (idx *Indexer) QueueStatus() core.QueueStatus {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return core.QueueStatus{
		PendingJobs:   idx.queue.len(),
		ActiveJobs:    idx.active,
		CompletedJobs: idx.completed,
		FailedJobs:    idx.failed,
		Metrics:       idx.metrics,
	}
}

// Metrics returns the running counters.
func (idx *Indexer) Metrics() core.IndexerMetrics {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.metrics
}

// RetryFailedJobs re-enqueues failed jobs and returns how many were
// requeued. Jobs that failed with a fatal error are never requeued, and
// each job is requeued at most max_retries times.
func (idx *Indexer) RetryFailedJobs() int {
	idx.mu.Lock()
	var retry []*core.IndexingJob
	for id, job := range idx.jobs {
		if job.Status != core.JobStatusFailed {
			continue
		}
		if rec := idx.failures[id]; rec != nil {
			if core.IsFatal(rec.err) || rec.requeues >= idx.cfg.MaxRetries {
				continue
			}
			rec.requeues++
		}
		job.Status = core.JobStatusPending
		job.ErrorMessage = ""
		job.Progress = core.JobProgress{Stage: "pending", Percentage: 0}
		idx.failed--
		retry = append(retry, job)
	}
	idx.mu.Unlock()

	for _, job := range retry {
		idx.queue.push(job)
	}
	if len(retry) > 0 {
		log.Printf("[INFO] requeued %d failed jobs", len(retry))
	}
	return len(retry)
}

// ClearCompleted drops completed job records and returns how many were
// removed.
func (idx *Indexer) ClearCompleted() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for id, job := range idx.jobs {
		if job.Status == core.JobStatusCompleted {
			delete(idx.jobs, id)
			delete(idx.failures, id)
			n++
		}
	}
	return n
}

// InvalidateDocument drops content-cache entries that point at documentID.
// Called when the document's fragments are deleted so a re-submission of the
// same bytes is reprocessed instead of resolving to the removed document.
func (idx *Indexer) InvalidateDocument(documentID string) int {
	return idx.cache.deleteByDocument(documentID)
}

// CacheStats reports content-cache occupancy and its TTL in seconds.
func (idx *Indexer) CacheStats() (entries, ttlSeconds int) {
	return idx.cache.size(), int(idx.cache.ttl / time.Second)
}

// EstimateProcessingTime predicts how long the current backlog will take,
// based on the running average job duration.
func (idx *Indexer) EstimateProcessingTime() time.Duration {
	idx.mu.Lock()
	avg := idx.metrics.AverageProcessingTime
	idx.mu.Unlock()
	if avg <= 0 {
		avg = 5
	}
	pending := idx.queue.len()
	workers := idx.cfg.MaxWorkers
	seconds := avg * float64(pending) / float64(workers)
	return time.Duration(seconds * float64(time.Second))
}

// Shutdown stops accepting work, drains the queue, and waits for workers up
// to the context deadline.
func (idx *Indexer) Shutdown(ctx context.Context) error {
	idx.mu.Lock()
	idx.shutdown = true
	idx.mu.Unlock()
	idx.queue.close()

	done := make(chan struct{})
	go func() {
		idx.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("[INFO] indexer drained and stopped")
		return nil
	case <-ctx.Done():
		return core.WrapError(core.ErrTimeout, ctx.Err(), "indexer shutdown")
	}
}
