package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// brandExpansions replace a bare single-word merchant query with retrieval
// context for that merchant. Multi-word queries are left alone.
var brandExpansions = map[string]string{
	"revolut":   "revolut card payment transaction bank",
	"paypal":    "paypal payment transaction online",
	"stripe":    "stripe payment processing charge",
	"amazon":    "amazon purchase order shopping",
	"uber":      "uber ride transport taxi",
	"starbucks": "starbucks coffee cafe purchase",
	"walmart":   "walmart store shopping purchase",
	"target":    "target store shopping retail",
}

// facetSynonyms group colloquial expense terms by facet. A query word found
// in a group is followed by the group's other members.
var facetSynonyms = map[string][]string{
	"amount":   {"total", "cost", "price", "sum", "charge", "fee"},
	"vendor":   {"merchant", "company", "business", "store", "supplier"},
	"date":     {"when", "date", "time", "day", "month", "year"},
	"category": {"type", "category", "kind", "classification"},
	"payment":  {"paid", "payment", "transaction", "purchase", "buy"},
}

var (
	dollarPattern     = regexp.MustCompile(`\$(\d+(?:\.\d{2})?)`)
	dollarWordPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d{2})?)\s+dollars?\b`)
	datePattern       = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
	howMuchPattern    = regexp.MustCompile(`(?i)\bhow much\b`)
	whoPaidPattern    = regexp.MustCompile(`(?i)\bwho paid\b`)
	whatForPattern    = regexp.MustCompile(`(?i)\bwhat for\b`)

	amountFilterPattern = regexp.MustCompile(`(?i)amount\s*([><=]+)\s*(\d+(?:\.\d{2})?)`)
	dateFilterPattern   = regexp.MustCompile(`(?i)\b(after|before|on)\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
	categoryPattern     = regexp.MustCompile(`(?i)\bcategory[:\s]+([^\s,]+)`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// Enhancer rewrites natural-language expense queries into retrieval-friendly
// text and extracts structured filters from them.
type Enhancer struct{}

func NewEnhancer() *Enhancer { return &Enhancer{} }

// Enhance extracts structured filters, strips their text from the query, and
// rewrites the remainder.
func (e *Enhancer) Enhance(query string) (string, core.SearchFilters) {
	cleaned, filters := e.extractFilters(query)
	return e.rewrite(cleaned), filters
}

func (e *Enhancer) rewrite(query string) string {
	out := strings.ToLower(strings.TrimSpace(query))

	if words := strings.Fields(out); len(words) == 1 {
		if expansion, ok := brandExpansions[strings.Trim(words[0], ".,!?")]; ok {
			out = expansion
		}
	}

	out = dollarWordPattern.ReplaceAllString(out, "amount $1")
	out = dollarPattern.ReplaceAllString(out, "amount $1 dollars")
	out = datePattern.ReplaceAllString(out, "date $1")
	out = howMuchPattern.ReplaceAllString(out, "amount cost total")
	out = whoPaidPattern.ReplaceAllString(out, "vendor merchant company")
	out = whatForPattern.ReplaceAllString(out, "category description purpose")

	words := strings.Fields(out)
	expanded := make([]string, 0, len(words))
	for _, word := range words {
		expanded = append(expanded, word)
		term := strings.Trim(word, ".,!?")
		for _, group := range facetSynonyms {
			if !containsTerm(group, term) {
				continue
			}
			for _, syn := range group {
				if syn != term {
					expanded = append(expanded, syn)
				}
			}
			break
		}
	}
	return strings.Join(expanded, " ")
}

// extractFilters parses amount, date, and category predicates and returns the
// query with the matched text removed.
func (e *Enhancer) extractFilters(query string) (string, core.SearchFilters) {
	var filters core.SearchFilters
	cleaned := query

	if m := amountFilterPattern.FindStringSubmatch(query); m != nil {
		if value, err := strconv.ParseFloat(m[2], 64); err == nil {
			op := m[1]
			switch op {
			case ">", ">=", "<", "<=", "=":
			case "==":
				op = "="
			default:
				op = "="
			}
			filters.Amount = &core.AmountFilter{Op: op, Value: value}
			cleaned = amountFilterPattern.ReplaceAllString(cleaned, "")
		}
	}

	if m := dateFilterPattern.FindStringSubmatch(query); m != nil {
		filters.Date = &core.DateFilter{
			Op:    strings.ToLower(m[1]),
			Value: normalizeDate(m[2]),
		}
		cleaned = dateFilterPattern.ReplaceAllString(cleaned, "")
	}

	if m := categoryPattern.FindStringSubmatch(query); m != nil {
		filters.Category = strings.ToLower(m[1])
		cleaned = categoryPattern.ReplaceAllString(cleaned, "")
	}

	cleaned = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))
	return cleaned, filters
}

// normalizeDate converts m/d/y dates to ISO so the store can compare them
// lexically. Two-digit years are assumed 20xx.
func normalizeDate(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) != 3 {
		return raw
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return raw
	}
	if year < 100 {
		year += 2000
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func containsTerm(group []string, term string) bool {
	for _, member := range group {
		if member == term {
			return true
		}
	}
	return false
}
