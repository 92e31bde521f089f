// Test doubles shared across package tests. Each fake exposes overridable
// function fields so a test can script exactly the behaviour it needs.
package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// SimpleEmbedder is a deterministic in-memory Embedder for tests.
type SimpleEmbedder struct {
	Dim     int
	EmbedFn func(ctx context.Context, texts []string) ([][]float64, error)
}

func (e *SimpleEmbedder) Dimension() int {
	if e.Dim == 0 {
		return 3
	}
	return e.Dim
}

func (e *SimpleEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.EmbedFn != nil {
		return e.EmbedFn(ctx, texts)
	}
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, e.Dimension())
		for j := range v {
			v[j] = float64((len(text)+i+j)%7) + 0.1
		}
		vectors[i] = v
	}
	return vectors, nil
}

// SimpleVectorStore is an in-memory VectorStore for tests. Search scores by
// naive substring overlap so tests can reason about ordering.
type SimpleVectorStore struct {
	mu        sync.Mutex
	Fragments []Fragment

	UpsertFn func(ctx context.Context, fragments []Fragment) ([]string, error)
	SearchFn func(ctx context.Context, queryVector []float64, tenant string, k int, filters SearchFilters, threshold float64) ([]SearchResult, error)
}

func (s *SimpleVectorStore) Upsert(ctx context.Context, fragments []Fragment) ([]string, error) {
	if s.UpsertFn != nil {
		return s.UpsertFn(ctx, fragments)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		s.Fragments = append(s.Fragments, f)
		ids = append(ids, f.FragmentID)
	}
	return ids, nil
}

func (s *SimpleVectorStore) Search(ctx context.Context, queryVector []float64, tenant string, k int, filters SearchFilters, threshold float64) ([]SearchResult, error) {
	if s.SearchFn != nil {
		return s.SearchFn(ctx, queryVector, tenant, k, filters, threshold)
	}
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []SearchResult
	for _, f := range s.Fragments {
		if f.Tenant != tenant {
			continue
		}
		results = append(results, SearchResult{Fragment: f, Score: 0.9})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SimpleVectorStore) HybridSearch(ctx context.Context, queryVector []float64, queryText, tenant string, k int, filters SearchFilters) ([]SearchResult, error) {
	return s.Search(ctx, queryVector, tenant, k, filters, 0.5)
}

func (s *SimpleVectorStore) GetByDocument(ctx context.Context, documentID string) ([]Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Fragment
	for _, f := range s.Fragments {
		if f.DocumentID == documentID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *SimpleVectorStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.Fragments[:0]
	for _, f := range s.Fragments {
		if f.DocumentID != documentID {
			kept = append(kept, f)
		}
	}
	s.Fragments = kept
	return nil
}

func (s *SimpleVectorStore) Stats(ctx context.Context, tenant string) (*StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := map[string]struct{}{}
	tenants := map[string]struct{}{}
	total := 0
	for _, f := range s.Fragments {
		if tenant != "" && f.Tenant != tenant {
			continue
		}
		total++
		docs[f.DocumentID] = struct{}{}
		tenants[f.Tenant] = struct{}{}
	}
	return &StoreStats{TotalChunks: total, UniqueDocuments: len(docs), UniqueBusinesses: len(tenants)}, nil
}

func (s *SimpleVectorStore) HealthCheck(ctx context.Context) error { return nil }
func (s *SimpleVectorStore) Close() error                          { return nil }

// SimpleFetcher is a scripted ObjectFetcher for tests.
type SimpleFetcher struct {
	Data     []byte
	MimeType string
	Err      error
}

func (f *SimpleFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.Err != nil {
		return nil, "", f.Err
	}
	return f.Data, f.MimeType, nil
}

// SimpleRecognizer is a scripted OCR engine for tests.
type SimpleRecognizer struct {
	Text       string
	Confidence float64
	Err        error
}

func (r *SimpleRecognizer) Available() bool { return r.Err == nil }

func (r *SimpleRecognizer) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if r.Err != nil {
		return "", 0, r.Err
	}
	return r.Text, r.Confidence, nil
}
