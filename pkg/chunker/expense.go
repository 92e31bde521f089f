package chunker

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// expenseSection is one recognised region of an expense document. Patterns
// are scanned in table order; spans already claimed by an earlier section are
// skipped.
type expenseSection struct {
	name    string
	pattern *regexp.Regexp
}

var expenseSections = []expenseSection{
	{"header", regexp.MustCompile(`(?ism)(invoice|receipt|bill|statement).*?(\n|$)`)},
	{"vendor", regexp.MustCompile(`(?ism)(vendor|merchant|company|business).*?(\n|$)`)},
	{"amount", regexp.MustCompile(`(?ism)(total|amount|sum|price|cost).*?(\$|USD|\d+\.\d{2})`)},
	{"date", regexp.MustCompile(`(?ism)(date|issued|transaction).*?(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)},
	{"items", regexp.MustCompile(`(?im)^.*(item|description|product|service).*$`)},
	{"tax", regexp.MustCompile(`(?ism)(tax|vat|gst).*?(\$|USD|\d+\.\d{2})`)},
	{"footer", regexp.MustCompile(`(?im)(thank you|visit again|policy|terms).*$`)},
}

// itemsStop ends an items span at the first following total/amount/tax line.
var itemsStop = regexp.MustCompile(`(?im)^\s*(total|amount|tax)`)

// minSectionLength drops trivially short matches.
const minSectionLength = 10

// ExpenseSectionChunker pattern-matches the canonical sections of a receipt
// or invoice and emits one fragment per section. Text not claimed by any
// section goes through fixed-size chunking tagged expense_general.
type ExpenseSectionChunker struct {
	residue *FixedSizeChunker
}

// NewExpenseSectionChunker creates the expense-section chunker.
func NewExpenseSectionChunker() *ExpenseSectionChunker {
	residue := NewFixedSizeChunker(500, 50, true)
	residue.chunkType = "expense_general"
	return &ExpenseSectionChunker{residue: residue}
}

func (c *ExpenseSectionChunker) Name() string { return "expense_section" }

func (c *ExpenseSectionChunker) Chunk(ctx context.Context, text, documentID string) ([]core.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var (
		chunks  []core.Chunk
		claimed []span
		index   int
	)

	for _, section := range expenseSections {
		for _, loc := range section.pattern.FindAllStringIndex(text, -1) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			start, end := loc[0], loc[1]
			if section.name == "items" {
				end = extendItemsSpan(text, end)
			}
			if overlaps(claimed, start, end) {
				continue
			}

			content := strings.TrimSpace(text[start:end])
			if len(content) <= minSectionLength {
				continue
			}

			chunks = append(chunks, core.Chunk{
				FragmentID: chunkID(documentID, index, content),
				Content:    content,
				ChunkIndex: index,
				ChunkType:  "expense_section",
				Section:    section.name,
				StartChar:  start,
				EndChar:    end,
			})
			index++
			claimed = append(claimed, span{start, end})
		}
	}

	// Stitch the unclaimed text together and chunk it generically.
	remaining := unclaimedText(text, claimed)
	if strings.TrimSpace(remaining) != "" {
		residueChunks, err := c.residue.chunkFrom(ctx, remaining, documentID, index, 0)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, residueChunks...)
	}

	return chunks, nil
}

type span struct{ start, end int }

func overlaps(claimed []span, start, end int) bool {
	for _, s := range claimed {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// extendItemsSpan grows an items match to just before the next line that
// opens with total/amount/tax, or to the end of text.
func extendItemsSpan(text string, from int) int {
	rest := text[from:]
	if loc := itemsStop.FindStringIndex(rest); loc != nil {
		return from + loc[0]
	}
	return len(text)
}

func unclaimedText(text string, claimed []span) string {
	if len(claimed) == 0 {
		return text
	}
	sorted := make([]span, len(claimed))
	copy(sorted, claimed)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var out strings.Builder
	last := 0
	for _, s := range sorted {
		if s.start > last {
			out.WriteString(text[last:s.start])
		}
		if s.end > last {
			last = s.end
		}
	}
	if last < len(text) {
		out.WriteString(text[last:])
	}
	return out.String()
}
