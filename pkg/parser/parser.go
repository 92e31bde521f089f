// Package parser decodes raw document bytes into normalised UTF-8 text with
// per-page provenance and a detected document class. Processors are
// registered per MIME type; the caller's MIME hint wins over extension
// sniffing.
package parser

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// Processor extracts text from one family of document formats.
type Processor interface {
	Process(ctx context.Context, data []byte, filename string) (*core.ParseResult, error)
}

// extensionMIME maps file extensions to MIME types when no hint is given.
var extensionMIME = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".html": "text/html",
	".htm":  "text/html",
}

// DefaultParser routes bytes to a registered processor and classifies the
// extracted text.
type DefaultParser struct {
	processors map[string]Processor
}

// New creates a parser with the full processor table. recognizer handles OCR
// for images and empty PDF pages; pass nil for an unavailable engine.
func New(recognizer core.Recognizer) *DefaultParser {
	if recognizer == nil {
		recognizer = &NoopRecognizer{}
	}

	p := &DefaultParser{processors: make(map[string]Processor)}

	p.Register("application/pdf", &PDFProcessor{Recognizer: recognizer})

	image := &ImageProcessor{Recognizer: recognizer}
	for _, mt := range []string{"image/jpeg", "image/png", "image/tiff", "image/bmp", "image/webp"} {
		p.Register(mt, image)
	}

	p.Register("application/vnd.openxmlformats-officedocument.wordprocessingml.document", &DocxProcessor{})

	text := &TextProcessor{}
	p.Register("text/plain", text)
	p.Register("text/csv", text)
	p.Register("application/json", text)

	p.Register("text/html", &HTMLProcessor{})

	return p
}

// Register adds or replaces the processor for a MIME type.
func (p *DefaultParser) Register(mimeType string, proc Processor) {
	p.processors[normalizeMIME(mimeType)] = proc
}

// Supports reports whether the MIME type has a registered processor.
func (p *DefaultParser) Supports(mimeType string) bool {
	_, ok := p.processors[normalizeMIME(mimeType)]
	return ok
}

// SupportedTypes lists the registered MIME types, sorted.
func (p *DefaultParser) SupportedTypes() []string {
	types := make([]string, 0, len(p.processors))
	for mt := range p.processors {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// Parse extracts text from data. mimeType may be empty, in which case the
// filename extension decides. Empty extracted text is not an error here; the
// indexer fails the job on it.
func (p *DefaultParser) Parse(ctx context.Context, data []byte, mimeType, filename string) (*core.ParseResult, error) {
	mt := normalizeMIME(mimeType)
	if mt == "" {
		mt = normalizeMIME(extensionMIME[strings.ToLower(filepath.Ext(filename))])
	}

	proc, ok := p.processors[mt]
	if !ok {
		return nil, core.WrapErrorWithContext(core.ErrUnsupportedType, nil, "mime type %q (file %q)", mimeType, filename)
	}

	if len(data) == 0 {
		return nil, core.WrapErrorWithContext(core.ErrEmptyContent, nil, "zero-byte document %q", filename)
	}

	result, err := proc.Process(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	result.Text = normalizeWhitespace(result.Text)
	result.Class = Classify(filename, result.Text)
	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}
	result.Metadata["mime_type"] = mt
	result.Metadata["byte_size"] = len(data)

	if strings.TrimSpace(result.Text) == "" {
		log.Printf("[WARN] parser extracted no text from %q (%s)", filename, mt)
	}
	return result, nil
}

// normalizeMIME strips parameters and lowercases, so "Text/Plain; charset=x"
// matches "text/plain". "image/jpg" is folded into "image/jpeg".
func normalizeMIME(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "image/jpg" {
		mt = "image/jpeg"
	}
	return mt
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// NoopRecognizer is the default OCR engine: always unavailable.
type NoopRecognizer struct{}

func (NoopRecognizer) Available() bool { return false }

func (NoopRecognizer) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	return "", 0, fmt.Errorf("no OCR engine configured")
}
