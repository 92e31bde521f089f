// Package service wires the parser, chunker, embedder, store, indexer, and
// search engine into one facade the HTTP surface and CLI call into.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finlex/docindexer/pkg/chunker"
	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
	"github.com/finlex/docindexer/pkg/embedder"
	"github.com/finlex/docindexer/pkg/fetch"
	"github.com/finlex/docindexer/pkg/indexer"
	"github.com/finlex/docindexer/pkg/parser"
	"github.com/finlex/docindexer/pkg/search"
	"github.com/finlex/docindexer/pkg/store"
)

// CacheStats reports the indexer's content-cache occupancy.
type CacheStats struct {
	Entries    int `json:"entries"`
	TTLSeconds int `json:"ttl_seconds"`
}

// Stats is the combined service-level statistics surface.
type Stats struct {
	VectorStore     *core.StoreStats `json:"vector_store"`
	DocumentIndexer core.QueueStatus `json:"document_indexer"`
	DocumentCache   CacheStats       `json:"document_cache"`
	UptimeSeconds   float64          `json:"uptime_seconds"`
}

// Service owns every pipeline component plus a maintenance cron.
type Service struct {
	cfg *config.Config

	embedder core.Embedder
	store    core.VectorStore
	indexer  *indexer.Indexer
	engine   *search.Engine

	cron      *cron.Cron
	startedAt time.Time
}

// New builds the full service from configuration. The OCR recognizer is nil
// by default; deployments with an engine use NewWithRecognizer.
func New(cfg *config.Config) (*Service, error) {
	return NewWithRecognizer(cfg, nil)
}

// NewWithRecognizer builds the service with an injected OCR engine.
func NewWithRecognizer(cfg *config.Config, recognizer core.Recognizer) (*Service, error) {
	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vs, err := store.New(cfg.Store, emb.Dimension())
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	docParser := parser.New(recognizer)
	router := chunker.NewRouter(emb, cfg.Chunker.MinChunkSize, cfg.Chunker.SemanticThreshold)
	fetcher := fetch.NewHTTPFetcher(cfg.Fetch)

	idx := indexer.New(docParser, router, emb, vs, fetcher, cfg.Indexer)

	engine, err := search.NewEngine(emb, vs, cfg.Search)
	if err != nil {
		_ = vs.Close()
		return nil, fmt.Errorf("create search engine: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		embedder:  emb,
		store:     vs,
		indexer:   idx,
		engine:    engine,
		cron:      cron.New(),
		startedAt: time.Now().UTC(),
	}
	s.startMaintenance()
	return s, nil
}

// startMaintenance schedules the periodic sweeps: failed-job retry when
// enabled, and an hourly completed-job cleanup.
func (s *Service) startMaintenance() {
	if s.cfg.Indexer.AutoRetryFailed {
		_, err := s.cron.AddFunc("@every 1m", func() {
			if n := s.indexer.RetryFailedJobs(); n > 0 {
				log.Printf("[INFO] maintenance requeued %d failed jobs", n)
			}
		})
		if err != nil {
			log.Printf("[WARN] could not schedule retry sweep: %v", err)
		}
	}
	_, err := s.cron.AddFunc("@hourly", func() {
		if n := s.indexer.ClearCompleted(); n > 0 {
			log.Printf("[INFO] maintenance cleared %d completed jobs", n)
		}
	})
	if err != nil {
		log.Printf("[WARN] could not schedule cleanup sweep: %v", err)
	}
	s.cron.Start()
}

// Health probes every component and aggregates the result. A store failure
// makes the service unhealthy; everything else degrades it.
func (s *Service) Health(ctx context.Context) *core.HealthReport {
	report := &core.HealthReport{
		Status:     core.HealthStatusHealthy,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]core.ComponentHealth),
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		report.Components["search_engine"] = core.ComponentHealth{Status: core.HealthStatusUnhealthy, Error: err.Error()}
		report.Status = core.HealthStatusUnhealthy
	} else if _, err := s.embedder.Embed(ctx, []string{"health probe"}); err != nil {
		report.Components["search_engine"] = core.ComponentHealth{Status: core.HealthStatusDegraded, Error: err.Error()}
		report.Status = core.HealthStatusDegraded
	} else {
		report.Components["search_engine"] = core.ComponentHealth{
			Status:  core.HealthStatusHealthy,
			Details: map[string]interface{}{"dimension": s.embedder.Dimension()},
		}
	}

	queue := s.indexer.QueueStatus()
	report.Components["document_indexer"] = core.ComponentHealth{
		Status: core.HealthStatusHealthy,
		Details: map[string]interface{}{
			"pending_jobs": queue.PendingJobs,
			"active_jobs":  queue.ActiveJobs,
		},
	}

	return report
}

// Stats reports store contents plus queue state, optionally tenant-scoped.
func (s *Service) Stats(ctx context.Context, tenant string) (*Stats, error) {
	storeStats, err := s.store.Stats(ctx, tenant)
	if err != nil {
		return nil, core.NewServiceError("service", "stats", err)
	}
	entries, ttl := s.indexer.CacheStats()
	return &Stats{
		VectorStore:     storeStats,
		DocumentIndexer: s.indexer.QueueStatus(),
		DocumentCache:   CacheStats{Entries: entries, TTLSeconds: ttl},
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
	}, nil
}

// Index submits one document for ingestion. Search caches are invalidated so
// completed writes become visible.
func (s *Service) Index(ctx context.Context, req indexer.SubmitRequest) (string, error) {
	jobID, err := s.indexer.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	s.engine.InvalidateCache()
	return jobID, nil
}

// IndexDirectory ingests every supported file under dir.
func (s *Service) IndexDirectory(ctx context.Context, dir, tenant string, priority int) ([]string, error) {
	jobIDs, err := s.indexer.SubmitDirectory(ctx, dir, tenant, priority)
	if len(jobIDs) > 0 {
		s.engine.InvalidateCache()
	}
	return jobIDs, err
}

// Search answers a tenant-scoped query.
func (s *Service) Search(ctx context.Context, req search.Request) (*core.SearchEnvelope, error) {
	if s.cfg.Search.RequestTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Search.RequestTimeoutSeconds)*time.Second)
		defer cancel()
	}
	return s.engine.Search(ctx, req)
}

// JobStatus returns one job's snapshot.
func (s *Service) JobStatus(jobID string) (*core.IndexingJob, error) {
	return s.indexer.JobStatus(jobID)
}

// QueueStatus snapshots the indexer queues.
func (s *Service) QueueStatus() core.QueueStatus {
	return s.indexer.QueueStatus()
}

// RetryFailedJobs requeues failed jobs now, outside the cron sweep.
func (s *Service) RetryFailedJobs() int {
	return s.indexer.RetryFailedJobs()
}

// DeleteDocument removes a document's fragments from the store and evicts
// any content-cache entries still pointing at it.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.Delete(ctx, documentID); err != nil {
		return err
	}
	s.indexer.InvalidateDocument(documentID)
	s.engine.InvalidateCache()
	return nil
}

// Close drains the indexer, stops the cron, and closes the store.
func (s *Service) Close(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	if err := s.indexer.Shutdown(ctx); err != nil {
		_ = s.store.Close()
		return err
	}
	return s.store.Close()
}
