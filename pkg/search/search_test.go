package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

func TestEnhanceDollarAmount(t *testing.T) {
	e := NewEnhancer()
	enhanced, _ := e.Enhance("receipts for $25.00 coffee")
	assert.Contains(t, enhanced, "amount 25.00 dollars")
}

func TestEnhanceQuestionRewrites(t *testing.T) {
	e := NewEnhancer()

	enhanced, _ := e.Enhance("how much did we spend")
	assert.Contains(t, enhanced, "amount cost total")

	enhanced, _ = e.Enhance("who paid the bill")
	assert.Contains(t, enhanced, "vendor merchant company")

	enhanced, _ = e.Enhance("what for was this charge")
	assert.Contains(t, enhanced, "description")
	assert.Contains(t, enhanced, "purpose")
}

func TestEnhanceDateRewrite(t *testing.T) {
	e := NewEnhancer()
	enhanced, _ := e.Enhance("lunch receipt 12/25/2023")
	assert.Contains(t, enhanced, "date 12/25/2023")
}

func TestEnhanceFacetSynonyms(t *testing.T) {
	e := NewEnhancer()
	enhanced, _ := e.Enhance("show the supplier for this purchase")
	assert.Contains(t, enhanced, "merchant")
	assert.Contains(t, enhanced, "paid")
}

func TestEnhanceSingleWordBrandExpanded(t *testing.T) {
	e := NewEnhancer()
	enhanced, filters := e.Enhance("starbucks")
	assert.Contains(t, enhanced, "starbucks coffee cafe")
	assert.Empty(t, filters.Merchant)
}

func TestEnhanceBrandInPhraseSetsNoMerchantFilter(t *testing.T) {
	e := NewEnhancer()
	enhanced, filters := e.Enhance("starbucks expenses last week")
	assert.Contains(t, enhanced, "starbucks")
	assert.NotContains(t, enhanced, "cafe")
	assert.Empty(t, filters.Merchant)
}

func TestEnhanceStripsFilterText(t *testing.T) {
	e := NewEnhancer()
	enhanced, filters := e.Enhance("amazon orders with amount > 50 after 3/14/2024")
	require.NotNil(t, filters.Amount)
	require.NotNil(t, filters.Date)
	assert.NotContains(t, enhanced, ">")
	assert.NotContains(t, enhanced, "50")
	assert.NotContains(t, enhanced, "3/14/2024")
}

func TestExtractAmountFilter(t *testing.T) {
	e := NewEnhancer()
	_, filters := e.Enhance("expenses with amount > 100")
	require.NotNil(t, filters.Amount)
	assert.Equal(t, ">", filters.Amount.Op)
	assert.Equal(t, 100.0, filters.Amount.Value)
}

func TestExtractDateFilter(t *testing.T) {
	e := NewEnhancer()
	_, filters := e.Enhance("receipts after 3/14/2024")
	require.NotNil(t, filters.Date)
	assert.Equal(t, "after", filters.Date.Op)
	assert.Equal(t, "2024-03-14", filters.Date.Value)
}

func TestExtractCategoryFilter(t *testing.T) {
	e := NewEnhancer()
	_, filters := e.Enhance("category: travel bookings")
	assert.Equal(t, "travel", filters.Category)
}

func TestNormalizeDateTwoDigitYear(t *testing.T) {
	assert.Equal(t, "2024-01-05", normalizeDate("1/5/24"))
	assert.Equal(t, "1999-13-99", normalizeDate("13-99-1999"))
}

func TestHighlightWrapsKeySpans(t *testing.T) {
	highlighted := highlight("Receipt total $42.00 on 3/14/2024", "coffee")
	assert.Contains(t, highlighted, "**Receipt**")
	assert.Contains(t, highlighted, "**total**")
	assert.Contains(t, highlighted, "**$42.00**")
	assert.Contains(t, highlighted, "**3/14/2024**")
}

func TestHighlightQueryTerms(t *testing.T) {
	highlighted := highlight("espresso machine maintenance", "espresso repair")
	assert.Contains(t, highlighted, "**espresso**")
	assert.NotContains(t, highlighted, "**machine**")
}

func TestHighlightOverlappingSpansMerge(t *testing.T) {
	// "amount" matches both a highlight pattern and a query term; the spans
	// must merge into a single pair of markers.
	highlighted := highlight("amount due", "amount")
	assert.Equal(t, "**amount** due", highlighted)
}

func TestDeduplicateNearIdentical(t *testing.T) {
	p := NewPostProcessor(true)
	results := []core.SearchResult{
		{Fragment: core.Fragment{Content: "Coffee receipt total $5.00 from Starbucks downtown store"}, Score: 0.9},
		{Fragment: core.Fragment{Content: "Coffee receipt total $5.00 from Starbucks downtown store."}, Score: 0.8},
		{Fragment: core.Fragment{Content: "Completely different travel booking for the Berlin trip"}, Score: 0.7},
	}
	out := p.Process(results, "coffee")
	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, 0.7, out[1].Score)
}

func TestJaccard(t *testing.T) {
	a := termSet("one two three four")
	b := termSet("one two three five")
	assert.InDelta(t, 0.6, jaccard(a, b), 1e-9)
	assert.Equal(t, 1.0, jaccard(a, a))
}

func newTestEngine(t *testing.T, store core.VectorStore) *Engine {
	t.Helper()
	engine, err := NewEngine(&core.SimpleEmbedder{Dim: 4}, store, config.SearchConfig{
		DefaultLimit:               10,
		MaxLimit:                   50,
		SimilarityThresholdDefault: 0.3,
		EnableDeduplication:        true,
		CacheSize:                  16,
	})
	require.NoError(t, err)
	return engine
}

func TestEngineValidation(t *testing.T) {
	engine := newTestEngine(t, &core.SimpleVectorStore{})

	_, err := engine.Search(context.Background(), Request{Query: " ", Tenant: "acme"})
	assert.ErrorIs(t, err, core.ErrBadRequest)

	_, err = engine.Search(context.Background(), Request{Query: "coffee"})
	assert.ErrorIs(t, err, core.ErrTenantRequired)
}

func TestEngineAutoMethod(t *testing.T) {
	engine := newTestEngine(t, &core.SimpleVectorStore{})

	env, err := engine.Search(context.Background(), Request{Query: "coffee", Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "vector", env.SearchMetadata.SearchMethod)

	env, err = engine.Search(context.Background(), Request{Query: "coffee receipts", Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "hybrid", env.SearchMetadata.SearchMethod)
}

func TestEngineEnvelope(t *testing.T) {
	store := &core.SimpleVectorStore{}
	_, err := store.Upsert(context.Background(), []core.Fragment{
		{FragmentID: "f1", Tenant: "acme", DocumentID: "d1", Content: "starbucks coffee receipt total $5.00"},
		{FragmentID: "f2", Tenant: "globex", DocumentID: "d2", Content: "other tenant fragment"},
	})
	require.NoError(t, err)

	engine := newTestEngine(t, store)
	env, err := engine.Search(context.Background(), Request{Query: "coffee purchase receipts", Tenant: "acme"})
	require.NoError(t, err)

	require.Len(t, env.Results, 1)
	assert.Equal(t, "f1", env.Results[0].Fragment.FragmentID)
	assert.Contains(t, env.Results[0].Highlighted, "**")
	assert.Equal(t, 1, env.TotalResults)
	assert.Equal(t, "coffee purchase receipts", env.SearchMetadata.OriginalQuery)
	assert.NotEqual(t, env.SearchMetadata.OriginalQuery, env.SearchMetadata.EnhancedQuery)
}

func TestEngineResultCache(t *testing.T) {
	calls := 0
	store := &core.SimpleVectorStore{
		SearchFn: func(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
			calls++
			return nil, nil
		},
	}
	engine := newTestEngine(t, store)

	req := Request{Query: "coffee", Tenant: "acme", Method: "vector"}
	_, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	_, err = engine.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	engine.InvalidateCache()
	_, err = engine.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEngineLimitClamped(t *testing.T) {
	var gotK int
	store := &core.SimpleVectorStore{
		SearchFn: func(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
			gotK = k
			return nil, nil
		},
	}
	engine := newTestEngine(t, store)

	_, err := engine.Search(context.Background(), Request{Query: "coffee", Tenant: "acme", Limit: intPtr(500), Method: "vector"})
	require.NoError(t, err)
	assert.Equal(t, 100, gotK, "retrieval depth is twice the clamped limit")
}

func intPtr(v int) *int { return &v }

func TestEngineZeroLimitReturnsEmpty(t *testing.T) {
	calls := 0
	store := &core.SimpleVectorStore{
		SearchFn: func(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
			calls++
			return nil, nil
		},
	}
	engine := newTestEngine(t, store)

	env, err := engine.Search(context.Background(), Request{Query: "coffee", Tenant: "acme", Limit: intPtr(0), Method: "vector"})
	require.NoError(t, err)
	assert.Empty(t, env.Results)
	assert.GreaterOrEqual(t, env.ProcessingTime, 0.0)
	assert.Equal(t, 0, calls, "zero limit must not hit the store")
}

func TestEngineTenantFromContext(t *testing.T) {
	var gotTenant string
	store := &core.SimpleVectorStore{
		SearchFn: func(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
			gotTenant = tenant
			return nil, nil
		},
	}
	engine := newTestEngine(t, store)

	ctx := core.WithTenantID(context.Background(), "acme")
	_, err := engine.Search(ctx, Request{Query: "coffee", Method: "vector"})
	require.NoError(t, err)
	assert.Equal(t, "acme", gotTenant)
}

func TestEngineBrandQueryReturnsUnlabelledFragments(t *testing.T) {
	// Fragments indexed without merchant metadata must still match a query
	// that names the merchant in free text.
	store := &core.SimpleVectorStore{
		SearchFn: func(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
			if filters.Merchant != "" {
				return nil, nil
			}
			return []core.SearchResult{{
				Fragment: core.Fragment{
					FragmentID: "f1",
					Tenant:     tenant,
					DocumentID: "d1",
					Content:    "Starbucks Coffee. Grande latte. Total: $5.40",
				},
				Score: 0.9,
			}}, nil
		},
	}
	engine := newTestEngine(t, store)

	env, err := engine.Search(context.Background(), Request{Query: "starbucks coffee", Tenant: "t1", Method: "vector"})
	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "f1", env.Results[0].Fragment.FragmentID)
	assert.Empty(t, env.SearchMetadata.FiltersApplied.Merchant)
}

func TestEngineCallerFiltersWin(t *testing.T) {
	var got core.SearchFilters
	store := &core.SimpleVectorStore{
		SearchFn: func(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
			got = filters
			return nil, nil
		},
	}
	engine := newTestEngine(t, store)

	_, err := engine.Search(context.Background(), Request{
		Query:   "starbucks charges with amount > 50",
		Tenant:  "acme",
		Method:  "vector",
		Filters: core.SearchFilters{Merchant: "peets"},
	})
	require.NoError(t, err)
	assert.Equal(t, "peets", got.Merchant)
	require.NotNil(t, got.Amount)
	assert.Equal(t, ">", got.Amount.Op)
}
