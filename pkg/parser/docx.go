package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// DocxProcessor extracts paragraphs and tables from word/document.xml.
// Tables are flattened row-major: cells tab-joined, rows newline-joined.
type DocxProcessor struct{}

func (p *DocxProcessor) Process(ctx context.Context, data []byte, filename string) (*core.ParseResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.WrapErrorWithContext(core.ErrUnsupportedType, err, "not a valid docx archive: %q", filename)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "failed to open document.xml")
			}
			docXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "failed to read document.xml")
			}
			break
		}
	}
	if docXML == nil {
		return nil, core.WrapErrorWithContext(core.ErrUnsupportedType, nil, "docx missing word/document.xml: %q", filename)
	}

	text, err := extractDocxText(docXML)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "failed to parse document.xml")
	}

	return &core.ParseResult{
		Text: text,
		Pages: []core.Page{{
			PageNumber:       1,
			Text:             text,
			CharCount:        len(text),
			ExtractionMethod: "docx",
		}},
		ProcessingMethod: "docx",
	}, nil
}

// extractDocxText walks the WordprocessingML token stream. Paragraphs end
// with a newline; inside tables, cell boundaries become tabs and row
// boundaries newlines.
func extractDocxText(docXML []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var (
		out        strings.Builder
		tableDepth int
		cellHasText bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "t":
				var content string
				if err := decoder.DecodeElement(&content, &t); err != nil {
					return "", err
				}
				out.WriteString(content)
				if tableDepth > 0 {
					cellHasText = true
				}
			case "tab":
				out.WriteString("\t")
			case "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
				out.WriteString("\n")
			case "tc":
				if cellHasText {
					out.WriteString("\t")
					cellHasText = false
				}
			case "tr":
				out.WriteString("\n")
			case "p":
				if tableDepth == 0 {
					out.WriteString("\n")
				}
			}
		}
	}

	// Collapse the trailing tab a cell leaves before its row's newline.
	text := strings.ReplaceAll(out.String(), "\t\n", "\n")
	return text, nil
}
