package search

import (
	"regexp"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// highlightPatterns mark spans a reviewer scans for first in expense text.
var highlightPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\d+(?:\.\d{2})?`),
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b(total|amount|sum|cost|price)\b`),
	regexp.MustCompile(`(?i)\b(invoice|receipt|bill|statement)\b`),
}

// PostProcessor highlights key spans and removes near-duplicate results.
type PostProcessor struct {
	Deduplicate bool
}

func NewPostProcessor(deduplicate bool) *PostProcessor {
	return &PostProcessor{Deduplicate: deduplicate}
}

// Process returns the results with highlights filled in and near-duplicates
// dropped, preserving score order.
func (p *PostProcessor) Process(results []core.SearchResult, query string) []core.SearchResult {
	out := make([]core.SearchResult, 0, len(results))
	var kept []map[string]struct{}

	for _, r := range results {
		if p.Deduplicate {
			terms := termSet(r.Fragment.Content)
			duplicate := false
			for _, prior := range kept {
				if jaccard(terms, prior) > 0.9 {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}
			kept = append(kept, terms)
		}
		r.Highlighted = highlight(r.Fragment.Content, query)
		out = append(out, r)
	}
	return out
}

// highlight wraps matched spans in **...**, query terms included. Spans are
// collected first and merged so overlapping matches never nest markers.
func highlight(content, query string) string {
	var spans []intSpan

	for _, pattern := range highlightPatterns {
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			spans = append(spans, intSpan{loc[0], loc[1]})
		}
	}
	for term := range termSet(query) {
		if len(term) < 3 {
			continue
		}
		termPattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		for _, loc := range termPattern.FindAllStringIndex(content, -1) {
			spans = append(spans, intSpan{loc[0], loc[1]})
		}
	}
	if len(spans) == 0 {
		return content
	}

	merged := mergeSpans(spans)
	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(content[prev:s.start])
		b.WriteString("**")
		b.WriteString(content[s.start:s.end])
		b.WriteString("**")
		prev = s.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

type intSpan struct{ start, end int }

func mergeSpans(spans []intSpan) []intSpan {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
	merged := spans[:0]
	for _, s := range spans {
		if n := len(merged); n > 0 && s.start <= merged[n-1].end {
			if s.end > merged[n-1].end {
				merged[n-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, term := range strings.Fields(strings.ToLower(text)) {
		term = strings.Trim(term, `.,:;!?"'()`)
		if term != "" {
			set[term] = struct{}{}
		}
	}
	return set
}

// jaccard treats equal normalised term sets as identity, so exact duplicates
// score 1.0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for term := range a {
		if _, ok := b[term]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
