package chunker

import (
	"context"

	"github.com/finlex/docindexer/pkg/core"
)

// HierarchicalChunker emits coarse parent chunks and, nested under each, fine
// child chunks. Children carry the parent's fragment ID and use half the
// parent overlap. Both levels are persisted.
type HierarchicalChunker struct {
	ParentSize int
	ChildSize  int
	Overlap    int
}

// NewHierarchicalChunker creates a hierarchical chunker.
func NewHierarchicalChunker(parentSize, childSize, overlap int) *HierarchicalChunker {
	if parentSize <= 0 {
		parentSize = 2000
	}
	if childSize <= 0 {
		childSize = 500
	}
	if overlap < 0 {
		overlap = 100
	}
	return &HierarchicalChunker{ParentSize: parentSize, ChildSize: childSize, Overlap: overlap}
}

func (c *HierarchicalChunker) Name() string { return "hierarchical" }

func (c *HierarchicalChunker) Chunk(ctx context.Context, text, documentID string) ([]core.Chunk, error) {
	parentChunker := NewFixedSizeChunker(c.ParentSize, c.Overlap, true)
	childChunker := NewFixedSizeChunker(c.ChildSize, c.Overlap/2, true)

	parents, err := parentChunker.Chunk(ctx, text, documentID)
	if err != nil {
		return nil, err
	}

	var all []core.Chunk
	for _, parent := range parents {
		parent.ChunkIndex = len(all)
		parent.ChunkType = "hierarchical_parent"
		parent.FragmentID = chunkID(documentID, parent.ChunkIndex, parent.Content)
		all = append(all, parent)

		children, err := childChunker.chunkFrom(ctx, parent.Content, documentID, len(all), parent.StartChar)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			child.ChunkIndex = len(all)
			child.ChunkType = "hierarchical_child"
			child.ParentFragmentID = parent.FragmentID
			child.FragmentID = chunkID(documentID, child.ChunkIndex, child.Content)
			all = append(all, child)
		}
	}

	return all, nil
}
