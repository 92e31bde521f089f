package chunker

import (
	"context"
	"log"
	"math"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// SemanticChunker groups sentences by embedding similarity. A new group
// starts when a sentence's similarity to the running mean of the group drops
// below the threshold (and the group is big enough), or when adding it would
// exceed MaxChunkSize. If the embedder fails, paragraphs are grouped into
// fixed windows instead.
type SemanticChunker struct {
	Embedder     core.Embedder
	MaxChunkSize int
	MinChunkSize int
	Threshold    float64
}

// NewSemanticChunker creates a semantic chunker.
func NewSemanticChunker(embedder core.Embedder, maxChunkSize, minChunkSize int, threshold float64) *SemanticChunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 1500
	}
	if minChunkSize <= 0 {
		minChunkSize = 100
	}
	return &SemanticChunker{
		Embedder:     embedder,
		MaxChunkSize: maxChunkSize,
		MinChunkSize: minChunkSize,
		Threshold:    threshold,
	}
}

func (c *SemanticChunker) Name() string { return "semantic" }

func (c *SemanticChunker) Chunk(ctx context.Context, text, documentID string) ([]core.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if c.Embedder == nil {
		return c.paragraphFallback(text, documentID), nil
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		content := strings.TrimSpace(text)
		return []core.Chunk{{
			FragmentID: chunkID(documentID, 0, content),
			Content:    content,
			ChunkIndex: 0,
			ChunkType:  "semantic_single",
			StartChar:  0,
			EndChar:    len([]rune(text)),
		}}, nil
	}

	embeddings, err := c.Embedder.Embed(ctx, sentences)
	if err != nil {
		log.Printf("[WARN] semantic chunking falling back to paragraphs: %v", err)
		return c.paragraphFallback(text, documentID), nil
	}

	return c.groupSentences(sentences, embeddings, documentID), nil
}

func (c *SemanticChunker) groupSentences(sentences []string, embeddings [][]float64, documentID string) []core.Chunk {
	var chunks []core.Chunk

	groupSentences := []string{sentences[0]}
	groupVectors := [][]float64{embeddings[0]}
	index := 0
	startChar := 0

	flush := func() {
		content := strings.TrimSpace(strings.Join(groupSentences, " "))
		if content == "" {
			return
		}
		endChar := startChar + len([]rune(content))
		chunks = append(chunks, core.Chunk{
			FragmentID: chunkID(documentID, index, content),
			Content:    content,
			ChunkIndex: index,
			ChunkType:  "semantic",
			StartChar:  startChar,
			EndChar:    endChar,
		})
		index++
		startChar = endChar + 1
	}

	for i := 1; i < len(sentences); i++ {
		mean := meanVector(groupVectors)
		similarity := cosineSimilarity(mean, embeddings[i])

		groupText := strings.Join(groupSentences, " ")
		wouldExceed := len(groupText)+1+len(sentences[i]) > c.MaxChunkSize
		drifted := similarity < c.Threshold && len(groupText) >= c.MinChunkSize

		if (drifted || wouldExceed) && len(groupText) >= c.MinChunkSize {
			flush()
			groupSentences = []string{sentences[i]}
			groupVectors = [][]float64{embeddings[i]}
		} else {
			groupSentences = append(groupSentences, sentences[i])
			groupVectors = append(groupVectors, embeddings[i])
		}
	}
	flush()

	return chunks
}

// paragraphFallback groups paragraphs into windows of at most MaxChunkSize,
// tagged paragraph_fallback.
func (c *SemanticChunker) paragraphFallback(text, documentID string) []core.Chunk {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []core.Chunk
	var current string
	index := 0
	startChar := 0

	flush := func() {
		content := strings.TrimSpace(current)
		if content == "" {
			return
		}
		endChar := startChar + len([]rune(content))
		chunks = append(chunks, core.Chunk{
			FragmentID: chunkID(documentID, index, content),
			Content:    content,
			ChunkIndex: index,
			ChunkType:  "paragraph_fallback",
			StartChar:  startChar,
			EndChar:    endChar,
		})
		index++
		startChar = endChar + 2
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current != "" && len(current)+len(p) > c.MaxChunkSize {
			flush()
			current = p
		} else if current == "" {
			current = p
		} else {
			current += "\n\n" + p
		}
	}
	flush()

	return chunks
}

func meanVector(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			mean[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
