// Package chunker splits parsed document text into retrieval fragments.
// A strategy is selected per document class; every strategy emits chunks
// with dense 0-based indices and stable IDs of the form
// {document_id}_chunk_{index}_{md5(content)[:8]}.
package chunker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// Strategy is one chunking algorithm.
type Strategy interface {
	Name() string
	Chunk(ctx context.Context, text, documentID string) ([]core.Chunk, error)
}

// Router selects a strategy by document class, per the routing table:
//
//	expense_document    -> expense-section
//	financial_statement -> semantic (max 1000)
//	contract            -> hierarchical (parent 1500 / child 400)
//	report              -> semantic (max 1200)
//	general_document    -> fixed-size (800 / 100)
//
// Unknown classes fall back to fixed-size (1000 / 200).
type Router struct {
	strategies map[core.DocumentClass]Strategy
	fallback   Strategy
	counter    *TokenCounter
}

// NewRouter builds the default routing table. embedder powers the semantic
// strategies; when it fails at runtime they degrade to paragraph chunks.
func NewRouter(embedder core.Embedder, minChunkSize int, semanticThreshold float64) *Router {
	if minChunkSize <= 0 {
		minChunkSize = 100
	}
	if semanticThreshold <= 0 {
		semanticThreshold = 0.5
	}

	counter := NewTokenCounter("cl100k_base")

	return &Router{
		strategies: map[core.DocumentClass]Strategy{
			core.ClassExpenseDocument:    NewExpenseSectionChunker(),
			core.ClassFinancialStatement: NewSemanticChunker(embedder, 1000, minChunkSize, semanticThreshold),
			core.ClassContract:           NewHierarchicalChunker(1500, 400, 100),
			core.ClassReport:             NewSemanticChunker(embedder, 1200, minChunkSize, semanticThreshold),
			core.ClassGeneralDocument:    NewFixedSizeChunker(800, 100, true),
		},
		fallback: NewFixedSizeChunker(1000, 200, true),
		counter:  counter,
	}
}

// Chunk splits text with the strategy for class. Returns zero chunks for
// blank text; the indexer treats that as a job failure.
func (r *Router) Chunk(ctx context.Context, text, documentID string, class core.DocumentClass) ([]core.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	strategy, ok := r.strategies[class]
	if !ok {
		strategy = r.fallback
	}

	chunks, err := strategy.Chunk(ctx, text, documentID)
	if err != nil {
		return nil, core.WrapErrorWithContext(core.ErrInternal, err, "chunking with %s", strategy.Name())
	}

	for i := range chunks {
		chunks[i].TokenCount = r.counter.Count(chunks[i].Content)
	}

	log.Printf("[INFO] chunked document %s (%s): %d chunks via %s",
		documentID, class, len(chunks), strategy.Name())
	return chunks, nil
}

// chunkID builds the fragment identifier from its position and content.
func chunkID(documentID string, index int, content string) string {
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%s_chunk_%d_%s", documentID, index, hex.EncodeToString(sum[:])[:8])
}

// splitSentences splits on sentence terminators followed by whitespace.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if isTerminator(runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		s := strings.TrimSpace(string(runes[start:]))
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
