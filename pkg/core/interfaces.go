// Package core defines the shared domain types, error taxonomy, and
// component contracts of the expense-document indexing and search service.
package core

import "context"

// Parser decodes an opaque byte blob plus MIME type into normalised UTF-8
// text with per-document metadata and a detected document class.
type Parser interface {
	Parse(ctx context.Context, data []byte, mimeType, filename string) (*ParseResult, error)
	Supports(mimeType string) bool
	SupportedTypes() []string
}

// Chunker splits parsed text into fragments using a strategy selected by
// document class.
type Chunker interface {
	Chunk(ctx context.Context, text, documentID string, class DocumentClass) ([]Chunk, error)
}

// Embedder maps text to fixed-dimension dense vectors. Implementations must
// be deterministic for a given input and safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
}

// VectorStore persists fragments and answers tenant-scoped nearest-neighbour
// queries. Implementations are safe for concurrent use.
type VectorStore interface {
	// Upsert inserts rows, dropping empty-content rows with a warning.
	// Returns the accepted fragment IDs.
	Upsert(ctx context.Context, fragments []Fragment) ([]string, error)

	// Search returns up to k fragments of the tenant with similarity >=
	// threshold, sorted by similarity descending. An empty tenant is an
	// error, never an unscoped scan.
	Search(ctx context.Context, queryVector []float64, tenant string, k int, filters SearchFilters, threshold float64) ([]SearchResult, error)

	// HybridSearch combines vector similarity with keyword overlap.
	HybridSearch(ctx context.Context, queryVector []float64, queryText, tenant string, k int, filters SearchFilters) ([]SearchResult, error)

	// GetByDocument returns all fragments of a document ordered by chunk index.
	GetByDocument(ctx context.Context, documentID string) ([]Fragment, error)

	// Delete removes all fragments of a document.
	Delete(ctx context.Context, documentID string) error

	// Stats reports store contents; tenant may be empty for global counts.
	Stats(ctx context.Context, tenant string) (*StoreStats, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// ObjectFetcher retrieves raw document bytes from an external object store.
type ObjectFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, mimeType string, err error)
}

// Recognizer performs OCR on a raster image. The default implementation
// reports unavailable; deployments inject a real engine.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
	Available() bool
}
