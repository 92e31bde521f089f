package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

const defaultCacheSize = 256

// Request is one search call. Filters set by the caller win over filters
// extracted from the query text. A nil Limit means the configured default;
// an explicit limit of zero or less yields an empty result list.
type Request struct {
	Query   string             `json:"query"`
	Tenant  string             `json:"tenant"`
	Limit   *int               `json:"limit,omitempty"`
	Method  string             `json:"search_method,omitempty"` // auto, vector, hybrid
	Filters core.SearchFilters `json:"filters,omitempty"`
}

// Engine answers tenant-scoped semantic queries over indexed fragments.
type Engine struct {
	embedder  core.Embedder
	store     core.VectorStore
	enhancer  *Enhancer
	processor *PostProcessor
	cache     *lru.Cache[string, *core.SearchEnvelope]
	cfg       config.SearchConfig
}

// NewEngine builds a search engine with an LRU result cache.
func NewEngine(embedder core.Embedder, store core.VectorStore, cfg config.SearchConfig) (*Engine, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 50
	}
	if cfg.SimilarityThresholdDefault <= 0 {
		cfg.SimilarityThresholdDefault = 0.3
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *core.SearchEnvelope](size)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Engine{
		embedder:  embedder,
		store:     store,
		enhancer:  NewEnhancer(),
		processor: NewPostProcessor(cfg.EnableDeduplication),
		cache:     cache,
		cfg:       cfg,
	}, nil
}

// Search runs the full pipeline: enhance, embed, retrieve at double depth,
// post-process, truncate.
func (e *Engine) Search(ctx context.Context, req Request) (*core.SearchEnvelope, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, core.NewValidationError("query", req.Query, "must not be empty")
	}
	if req.Tenant == "" {
		req.Tenant = core.GetTenantID(ctx)
	}
	if req.Tenant == "" {
		return nil, core.ErrTenantRequired
	}

	method := e.resolveMethod(req)

	k := e.cfg.DefaultLimit
	if req.Limit != nil {
		k = *req.Limit
	}
	if k <= 0 {
		return &core.SearchEnvelope{
			Query:   req.Query,
			Results: []core.SearchResult{},
			SearchMetadata: core.SearchMetadata{
				OriginalQuery:         req.Query,
				EnhancedQuery:         req.Query,
				PostProcessingEnabled: true,
				DeduplicationEnabled:  e.processor.Deduplicate,
				SearchMethod:          method,
			},
		}, nil
	}
	if k > e.cfg.MaxLimit {
		k = e.cfg.MaxLimit
	}

	key := cacheKey(req, k, method)
	if envelope, ok := e.cache.Get(key); ok {
		log.Printf("[SEARCH] cache hit for tenant %s query %q", req.Tenant, req.Query)
		return envelope, nil
	}

	started := time.Now()

	enhanced, extracted := e.enhancer.Enhance(req.Query)
	filters := mergeFilters(req.Filters, extracted)

	vectors, err := e.embedder.Embed(ctx, []string{enhanced})
	if err != nil {
		return nil, core.NewServiceError("search", "embed_query", err)
	}
	if len(vectors) != 1 {
		return nil, core.WrapErrorWithContext(core.ErrInternal, nil, "embedder returned %d vectors for one query", len(vectors))
	}

	var raw []core.SearchResult
	switch method {
	case "hybrid":
		raw, err = e.store.HybridSearch(ctx, vectors[0], enhanced, req.Tenant, 2*k, filters)
	default:
		raw, err = e.store.Search(ctx, vectors[0], req.Tenant, 2*k, filters, e.cfg.SimilarityThresholdDefault)
	}
	if err != nil {
		return nil, core.NewServiceError("search", "retrieve", err)
	}

	processed := e.processor.Process(raw, enhanced)
	if len(processed) > k {
		processed = processed[:k]
	}

	envelope := &core.SearchEnvelope{
		Query:          req.Query,
		Results:        processed,
		TotalResults:   len(processed),
		ProcessingTime: time.Since(started).Seconds(),
		SearchMetadata: core.SearchMetadata{
			OriginalQuery:         req.Query,
			EnhancedQuery:         enhanced,
			FiltersApplied:        filters,
			TotalRawResults:       len(raw),
			PostProcessingEnabled: true,
			DeduplicationEnabled:  e.processor.Deduplicate,
			SearchMethod:          method,
		},
	}
	e.cache.Add(key, envelope)

	log.Printf("[SEARCH] tenant %s query %q: %d/%d results via %s in %.3fs",
		req.Tenant, req.Query, len(processed), len(raw), method, envelope.ProcessingTime)
	return envelope, nil
}

// resolveMethod maps auto to hybrid for multi-term queries and vector for
// single terms.
func (e *Engine) resolveMethod(req Request) string {
	switch req.Method {
	case "vector", "hybrid":
		return req.Method
	}
	if len(strings.Fields(req.Query)) >= 2 {
		return "hybrid"
	}
	return "vector"
}

// InvalidateCache drops all cached envelopes, called after writes.
func (e *Engine) InvalidateCache() {
	e.cache.Purge()
}

func cacheKey(req Request, k int, method string) string {
	filterJSON, _ := json.Marshal(req.Filters)
	return fmt.Sprintf("%s|%s|%d|%s|%s", req.Tenant, req.Query, k, method, filterJSON)
}

// mergeFilters overlays extracted filters under caller-provided ones.
func mergeFilters(caller, extracted core.SearchFilters) core.SearchFilters {
	merged := caller
	if merged.Category == "" {
		merged.Category = extracted.Category
	}
	if merged.Merchant == "" {
		merged.Merchant = extracted.Merchant
	}
	if merged.DocumentType == "" {
		merged.DocumentType = extracted.DocumentType
	}
	if merged.Amount == nil {
		merged.Amount = extracted.Amount
	}
	if merged.Date == nil {
		merged.Date = extracted.Date
	}
	return merged
}
