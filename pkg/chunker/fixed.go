package chunker

import (
	"context"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// FixedSizeChunker cuts text into windows of Target characters, sliding
// forward by Target - Overlap. With PreserveSentences the window end moves to
// the sentence terminator nearest the target within +-100 characters.
type FixedSizeChunker struct {
	Target            int
	Overlap           int
	PreserveSentences bool

	// chunkType tags emitted chunks; empty means "fixed_size".
	chunkType string
}

// NewFixedSizeChunker creates a fixed-size chunker.
func NewFixedSizeChunker(target, overlap int, preserveSentences bool) *FixedSizeChunker {
	if target <= 0 {
		target = 1000
	}
	if overlap < 0 || overlap >= target {
		overlap = target / 5
	}
	return &FixedSizeChunker{Target: target, Overlap: overlap, PreserveSentences: preserveSentences}
}

func (c *FixedSizeChunker) Name() string { return "fixed_size" }

func (c *FixedSizeChunker) Chunk(ctx context.Context, text, documentID string) ([]core.Chunk, error) {
	return c.chunkFrom(ctx, text, documentID, 0, 0)
}

// chunkFrom allows callers to offset chunk indices and character positions,
// which the expense and hierarchical strategies need.
func (c *FixedSizeChunker) chunkFrom(ctx context.Context, text, documentID string, indexOffset, charOffset int) ([]core.Chunk, error) {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil, nil
	}

	chunkType := c.chunkType
	if chunkType == "" {
		chunkType = "fixed_size"
	}

	var chunks []core.Chunk
	start := 0
	index := indexOffset

	for start < len(runes) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + c.Target
		if end > len(runes) {
			end = len(runes)
		} else if c.PreserveSentences {
			end = c.adjustToSentence(runes, start, end)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, core.Chunk{
				FragmentID: chunkID(documentID, index, content),
				Content:    content,
				ChunkIndex: index,
				ChunkType:  chunkType,
				StartChar:  charOffset + start,
				EndChar:    charOffset + end,
			})
			index++
		}

		if end >= len(runes) {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

// adjustToSentence moves end to the sentence boundary closest to the target
// position, searching +-100 characters around it.
func (c *FixedSizeChunker) adjustToSentence(runes []rune, start, target int) int {
	searchStart := target - 100
	if half := start + c.Target/2; searchStart < half {
		searchStart = half
	}
	searchEnd := target + 100
	if searchEnd > len(runes) {
		searchEnd = len(runes)
	}

	best := -1
	bestDist := 1 << 30
	for i := searchStart; i < searchEnd-1; i++ {
		if isTerminator(runes[i]) && isSpace(runes[i+1]) {
			// Boundary sits after the terminator and its whitespace run.
			pos := i + 1
			for pos < searchEnd && isSpace(runes[pos]) {
				pos++
			}
			dist := pos - target
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				best, bestDist = pos, dist
			}
		}
	}

	if best > start {
		return best
	}
	return target
}
