package chunker

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlex/docindexer/pkg/core"
)

var fragmentIDPattern = regexp.MustCompile(`^doc1_chunk_\d+_[0-9a-f]{8}$`)

func TestFixedSizeBasic(t *testing.T) {
	c := NewFixedSizeChunker(100, 20, false)

	text := strings.Repeat("expense record line. ", 30) // ~630 chars
	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, "fixed_size", ch.ChunkType)
		assert.True(t, fragmentIDPattern.MatchString(ch.FragmentID), ch.FragmentID)
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
	}
}

func TestFixedSizeShortTextSingleChunk(t *testing.T) {
	c := NewFixedSizeChunker(800, 100, true)

	chunks, err := c.Chunk(context.Background(), "just one short line", "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one short line", chunks[0].Content)
}

func TestFixedSizeEmptyText(t *testing.T) {
	c := NewFixedSizeChunker(800, 100, true)

	chunks, err := c.Chunk(context.Background(), "   \n\t  ", "doc1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFixedSizePreservesSentences(t *testing.T) {
	c := NewFixedSizeChunker(60, 10, true)

	text := "First sentence here. Second sentence follows now. Third sentence ends it. Fourth one too."
	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Every chunk but the last should end at a sentence boundary.
	for _, ch := range chunks[:len(chunks)-1] {
		assert.Regexp(t, `[.!?]$`, ch.Content)
	}
}

func TestFixedSizeCoverage(t *testing.T) {
	c := NewFixedSizeChunker(50, 10, false)

	text := strings.Repeat("abcdefghij", 20)
	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)

	// Concatenation by chunk_index must cover the source text.
	covered := 0
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, ch.StartChar, 0)
		assert.LessOrEqual(t, ch.StartChar, covered)
		if ch.EndChar > covered {
			covered = ch.EndChar
		}
	}
	assert.Equal(t, len(text), covered)
}

func TestSemanticFallsBackWithoutEmbedder(t *testing.T) {
	c := NewSemanticChunker(nil, 200, 50, 0.5)

	text := "First paragraph about coffee expenses.\n\nSecond paragraph about travel costs.\n\nThird paragraph about office supplies."
	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "paragraph_fallback", ch.ChunkType)
	}
}

func TestSemanticSingleSentence(t *testing.T) {
	c := NewSemanticChunker(&core.SimpleEmbedder{Dim: 8}, 1000, 100, 0.5)

	chunks, err := c.Chunk(context.Background(), "Only one sentence without a terminator", "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "semantic_single", chunks[0].ChunkType)
}

func TestSemanticGroupsBySimilarity(t *testing.T) {
	// Script an embedder whose vectors flip direction halfway through, so
	// the similarity gate forces exactly one split.
	embed := &core.SimpleEmbedder{Dim: 2, EmbedFn: func(ctx context.Context, texts []string) ([][]float64, error) {
		vecs := make([][]float64, len(texts))
		for i := range texts {
			if i < len(texts)/2 {
				vecs[i] = []float64{1, 0}
			} else {
				vecs[i] = []float64{0, 1}
			}
		}
		return vecs, nil
	}}
	c := NewSemanticChunker(embed, 10000, 10, 0.5)

	text := "Coffee one. Coffee two. Coffee three. Travel one. Travel two. Travel three."
	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "Coffee")
	assert.Contains(t, chunks[1].Content, "Travel")
}

func TestHierarchicalParentsAndChildren(t *testing.T) {
	c := NewHierarchicalChunker(200, 60, 20)

	text := strings.Repeat("This is a clause of the agreement. ", 30)
	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	parents := map[string]bool{}
	childSeen := false
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		switch ch.ChunkType {
		case "hierarchical_parent":
			parents[ch.FragmentID] = true
			assert.Empty(t, ch.ParentFragmentID)
		case "hierarchical_child":
			childSeen = true
			assert.True(t, parents[ch.ParentFragmentID], "child must reference an emitted parent")
		default:
			t.Fatalf("unexpected chunk type %q", ch.ChunkType)
		}
	}
	assert.True(t, childSeen)
}

func TestExpenseSections(t *testing.T) {
	c := NewExpenseSectionChunker()

	text := "RECEIPT #1042 Downtown Store\n" +
		"Merchant: Starbucks Coffee Company\n" +
		"Date: 03/14/2024\n" +
		"Item Description: Grande Latte x2\n" +
		"Total Amount: $10.50\n" +
		"Tax: $0.85\n" +
		"Thank you for your visit, see our return policy online\n"

	chunks, err := c.Chunk(context.Background(), text, "doc1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	sections := map[string]bool{}
	for _, ch := range chunks {
		if ch.ChunkType == "expense_section" {
			sections[ch.Section] = true
		}
	}
	assert.True(t, sections["header"], "header section should match")
	assert.True(t, sections["vendor"] || sections["amount"], "typed sections should match")
}

func TestExpenseResidueTagged(t *testing.T) {
	c := NewExpenseSectionChunker()

	// No section keywords at all: everything lands in the residue.
	chunks, err := c.Chunk(context.Background(), "plain narrative text with no keywords whatsoever in it", "doc1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "expense_general", ch.ChunkType)
	}
}

func TestRouterRouting(t *testing.T) {
	r := NewRouter(&core.SimpleEmbedder{Dim: 4}, 100, 0.5)

	text := strings.Repeat("A contract clause about obligations. ", 60)
	chunks, err := r.Chunk(context.Background(), text, "doc1", core.ClassContract)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, []string{"hierarchical_parent", "hierarchical_child"}, chunks[0].ChunkType)

	chunks, err = r.Chunk(context.Background(), text, "doc1", core.ClassGeneralDocument)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "fixed_size", chunks[0].ChunkType)
}

func TestRouterBlankText(t *testing.T) {
	r := NewRouter(nil, 100, 0.5)

	chunks, err := r.Chunk(context.Background(), "  ", "doc1", core.ClassGeneralDocument)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRouterTokenCounts(t *testing.T) {
	r := NewRouter(nil, 100, 0.5)

	chunks, err := r.Chunk(context.Background(), "some text that will be counted", "doc1", core.ClassGeneralDocument)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Greater(t, chunks[0].TokenCount, 0)
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("One here. Two there! Three? Four")
	assert.Equal(t, []string{"One here.", "Two there!", "Three?", "Four"}, sentences)
}
