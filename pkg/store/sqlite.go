// Package store persists fragments and answers tenant-scoped top-k queries.
// The SQLite backend keeps typed columns per expense facet and computes
// vector similarity in process; the Qdrant backend delegates to a remote
// collection. Both are selected through the factory by configuration.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/finlex/docindexer/pkg/core"
)

const createFragmentsTable = `
CREATE TABLE IF NOT EXISTS fragments (
	fragment_id        TEXT PRIMARY KEY,
	tenant             TEXT NOT NULL,
	document_id        TEXT NOT NULL,
	content            TEXT NOT NULL,
	vector             BLOB NOT NULL,
	chunk_index        INTEGER NOT NULL,
	chunk_type         TEXT NOT NULL DEFAULT '',
	parent_fragment_id TEXT NOT NULL DEFAULT '',
	start_char         INTEGER NOT NULL DEFAULT 0,
	end_char           INTEGER NOT NULL DEFAULT 0,
	amount             REAL NOT NULL DEFAULT 0,
	category           TEXT NOT NULL DEFAULT '',
	merchant           TEXT NOT NULL DEFAULT '',
	expense_date       TEXT NOT NULL DEFAULT '',
	document_type      TEXT NOT NULL DEFAULT '',
	source_url         TEXT NOT NULL DEFAULT '',
	metadata_json      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fragments_tenant ON fragments(tenant);
CREATE INDEX IF NOT EXISTS idx_fragments_document ON fragments(document_id);
`

// SQLiteStore is the default vector store backend. Predicates are pushed to
// SQL; cosine similarity over the surviving candidates is computed in Go.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

// NewSQLiteStore opens (or creates) the store at path. An empty path opens an
// in-memory database. dimension fixes the vector width for every row.
func NewSQLiteStore(path string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive: %d", dimension)
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps SQLite lock contention away from the worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(createFragmentsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dimension: dimension}, nil
}

// Upsert inserts fragments, replacing rows with the same fragment ID. Rows
// with empty content are dropped with a warning. Returns accepted IDs.
func (s *SQLiteStore) Upsert(ctx context.Context, fragments []core.Fragment) ([]string, error) {
	if len(fragments) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "begin upsert")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fragments (
			fragment_id, tenant, document_id, content, vector,
			chunk_index, chunk_type, parent_fragment_id, start_char, end_char,
			amount, category, merchant, expense_date, document_type,
			source_url, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "prepare upsert")
	}
	defer func() { _ = stmt.Close() }()

	accepted := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f.Content) == "" {
			log.Printf("[WARN] dropping fragment %s with empty content", f.FragmentID)
			continue
		}
		if f.Tenant == "" {
			return nil, core.WrapErrorWithContext(core.ErrTenantRequired, nil, "fragment %s", f.FragmentID)
		}
		if len(f.Vector) != s.dimension {
			return nil, core.WrapErrorWithContext(core.ErrDimensionMismatch, nil,
				"fragment %s has dimension %d, store expects %d", f.FragmentID, len(f.Vector), s.dimension)
		}

		createdAt := f.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err := stmt.ExecContext(ctx,
			f.FragmentID, f.Tenant, f.DocumentID, f.Content, encodeVector(f.Vector),
			f.ChunkIndex, f.ChunkType, f.ParentFragmentID, f.StartChar, f.EndChar,
			f.Amount, f.Category, f.Merchant, f.ExpenseDate, f.DocumentType,
			f.SourceURL, f.MetadataJSON, createdAt,
		)
		if err != nil {
			return nil, core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "insert fragment %s", f.FragmentID)
		}
		accepted = append(accepted, f.FragmentID)
	}

	if err := tx.Commit(); err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "commit upsert")
	}
	return accepted, nil
}

// Search returns up to k fragments of the tenant with similarity >= threshold.
func (s *SQLiteStore) Search(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	if len(queryVector) != s.dimension {
		return nil, core.WrapErrorWithContext(core.ErrDimensionMismatch, nil,
			"query has dimension %d, store expects %d", len(queryVector), s.dimension)
	}
	if k <= 0 {
		return []core.SearchResult{}, nil
	}

	where, args := buildPredicates(tenant, filters)
	query := `SELECT fragment_id, tenant, document_id, content, vector,
		chunk_index, chunk_type, parent_fragment_id, start_char, end_char,
		amount, category, merchant, expense_date, document_type,
		source_url, metadata_json, created_at
		FROM fragments WHERE ` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "search query")
	}
	defer func() { _ = rows.Close() }()

	var results []core.SearchResult
	for rows.Next() {
		fragment, vector, err := scanFragment(rows)
		if err != nil {
			return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "scan fragment")
		}

		similarity := similarityFromDistance(cosineDistance(queryVector, vector))
		if similarity < threshold {
			continue
		}
		fragment.Vector = vector
		results = append(results, core.SearchResult{Fragment: fragment, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "search rows")
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// HybridSearch widens the vector search to 2k at threshold 0.5 and re-ranks
// by 0.7*similarity + 0.3*keyword overlap. Transitional until the backend
// grows a lexical index.
func (s *SQLiteStore) HybridSearch(ctx context.Context, queryVector []float64, queryText, tenant string, k int, filters core.SearchFilters) ([]core.SearchResult, error) {
	raw, err := s.Search(ctx, queryVector, tenant, 2*k, filters, 0.5)
	if err != nil {
		return nil, err
	}
	return rerankHybrid(raw, queryText, k), nil
}

// GetByDocument returns all fragments of a document ordered by chunk index.
func (s *SQLiteStore) GetByDocument(ctx context.Context, documentID string) ([]core.Fragment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fragment_id, tenant, document_id, content, vector,
		chunk_index, chunk_type, parent_fragment_id, start_char, end_char,
		amount, category, merchant, expense_date, document_type,
		source_url, metadata_json, created_at
		FROM fragments WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "get by document")
	}
	defer func() { _ = rows.Close() }()

	var fragments []core.Fragment
	for rows.Next() {
		fragment, vector, err := scanFragment(rows)
		if err != nil {
			return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "scan fragment")
		}
		fragment.Vector = vector
		fragments = append(fragments, fragment)
	}
	return fragments, rows.Err()
}

// Delete removes all fragments of a document.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = ?`, documentID)
	if err != nil {
		return core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "delete document %s", documentID)
	}
	return nil
}

// Stats reports row counts, scoped to tenant when one is given.
func (s *SQLiteStore) Stats(ctx context.Context, tenant string) (*core.StoreStats, error) {
	query := `SELECT COUNT(*), COUNT(DISTINCT document_id), COUNT(DISTINCT tenant) FROM fragments`
	args := []interface{}{}
	if tenant != "" {
		query += ` WHERE tenant = ?`
		args = append(args, tenant)
	}

	stats := &core.StoreStats{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.TotalChunks, &stats.UniqueDocuments, &stats.UniqueBusinesses)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "stats query")
	}
	return stats, nil
}

// HealthCheck verifies the database answers queries.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return core.WrapError(core.ErrUpstreamUnavailable, err, "sqlite health check")
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// buildPredicates translates filters into a WHERE clause. The tenant
// predicate always leads.
func buildPredicates(tenant string, filters core.SearchFilters) (string, []interface{}) {
	clauses := []string{"tenant = ?"}
	args := []interface{}{tenant}

	if filters.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filters.Category)
	}
	if filters.Merchant != "" {
		clauses = append(clauses, "merchant LIKE ?")
		args = append(args, "%"+filters.Merchant+"%")
	}
	if filters.DocumentType != "" {
		clauses = append(clauses, "document_type = ?")
		args = append(args, filters.DocumentType)
	}
	if filters.Amount != nil {
		op := filters.Amount.Op
		switch op {
		case "=", "<", "<=", ">", ">=":
			clauses = append(clauses, "amount "+op+" ?")
			args = append(args, filters.Amount.Value)
		}
	}
	if filters.Date != nil && filters.Date.Value != "" {
		switch filters.Date.Op {
		case "after":
			clauses = append(clauses, "expense_date > ?")
		case "before":
			clauses = append(clauses, "expense_date < ?")
		default:
			clauses = append(clauses, "expense_date = ?")
		}
		args = append(args, filters.Date.Value)
	}
	for key, value := range filters.Extra {
		clauses = append(clauses, "metadata_json LIKE ?")
		args = append(args, fmt.Sprintf(`%%"%s"%%%v%%`, key, value))
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFragment(row rowScanner) (core.Fragment, []float64, error) {
	var (
		f    core.Fragment
		blob []byte
	)
	err := row.Scan(
		&f.FragmentID, &f.Tenant, &f.DocumentID, &f.Content, &blob,
		&f.ChunkIndex, &f.ChunkType, &f.ParentFragmentID, &f.StartChar, &f.EndChar,
		&f.Amount, &f.Category, &f.Merchant, &f.ExpenseDate, &f.DocumentType,
		&f.SourceURL, &f.MetadataJSON, &f.CreatedAt,
	)
	if err != nil {
		return core.Fragment{}, nil, err
	}
	return f, decodeVector(blob), nil
}

// encodeVector packs float64 values as little-endian float32.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(x)))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	v := make([]float64, len(buf)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
	}
	return v
}

// cosineDistance is 1 - cosine similarity; orthogonal vectors score 1.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// similarityFromDistance maps cosine distance into [0, 1].
func similarityFromDistance(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	return s
}

// rerankHybrid combines vector similarity with keyword overlap and truncates
// to k. Shared by both backends.
func rerankHybrid(raw []core.SearchResult, queryText string, k int) []core.SearchResult {
	queryTerms := termSet(queryText)

	for i := range raw {
		keyword := keywordScore(queryTerms, raw[i].Fragment.Content)
		raw[i].Score = 0.7*raw[i].Score + 0.3*keyword
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Score > raw[j].Score })
	if len(raw) > k {
		raw = raw[:k]
	}
	return raw
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(text)) {
		terms[strings.Trim(t, `.,:;!?"'()`)] = struct{}{}
	}
	delete(terms, "")
	return terms
}

// keywordScore is |query terms in content| / |query terms|.
func keywordScore(queryTerms map[string]struct{}, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentTerms := termSet(content)
	matched := 0
	for t := range queryTerms {
		if _, ok := contentTerms[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
