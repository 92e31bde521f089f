package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/finlex/docindexer/pkg/core"
)

// HTMLProcessor extracts visible text from HTML payloads, the common shape of
// e-mailed receipts. Script and style subtrees are dropped; tables are
// flattened the same way DOCX tables are.
type HTMLProcessor struct{}

func (p *HTMLProcessor) Process(ctx context.Context, data []byte, filename string) (*core.ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, core.WrapErrorWithContext(core.ErrUnsupportedType, err, "invalid HTML: %q", filename)
	}

	doc.Find("script, style, noscript").Remove()

	var out strings.Builder

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) > 0 {
				out.WriteString(strings.Join(cells, "\t"))
				out.WriteString("\n")
			}
		})
		// Remove so the body pass below does not repeat table text.
		table.Remove()
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find("p, div, li, h1, h2, h3, h4, h5, h6, span").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			out.WriteString(text)
			out.WriteString("\n")
		}
	})

	text := out.String()
	if strings.TrimSpace(text) == "" {
		text = strings.TrimSpace(body.Text())
	}

	return &core.ParseResult{
		Text: text,
		Pages: []core.Page{{
			PageNumber:       1,
			Text:             text,
			CharCount:        len(text),
			ExtractionMethod: "html",
		}},
		ProcessingMethod: "html",
	}, nil
}
