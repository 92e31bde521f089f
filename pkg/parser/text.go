package parser

import (
	"context"
	"unicode/utf8"

	"github.com/finlex/docindexer/pkg/core"
)

// TextProcessor decodes plain text, CSV, and JSON payloads. Invalid UTF-8
// falls back to Latin-1, and the decoding used is recorded.
type TextProcessor struct{}

func (p *TextProcessor) Process(ctx context.Context, data []byte, filename string) (*core.ParseResult, error) {
	text := string(data)
	method := "text_file"
	if !utf8.Valid(data) {
		text = decodeLatin1(data)
		method = "text_file_latin1"
	}

	return &core.ParseResult{
		Text: text,
		Pages: []core.Page{{
			PageNumber:       1,
			Text:             text,
			CharCount:        len(text),
			ExtractionMethod: method,
		}},
		ProcessingMethod: method,
	}, nil
}

// decodeLatin1 maps each byte to the code point of the same value.
func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
