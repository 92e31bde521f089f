package parser

import (
	"bytes"
	"context"
	"log"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/finlex/docindexer/pkg/core"
)

// PDFProcessor extracts text page by page. Pages whose text layer is empty
// fall through to OCR when a recognizer is available; the fallback is
// recorded per page in extraction_method.
type PDFProcessor struct {
	Recognizer core.Recognizer
}

func (p *PDFProcessor) Process(ctx context.Context, data []byte, filename string) (*core.ParseResult, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "failed to open PDF %q", filename)
	}

	var (
		content    strings.Builder
		pages      []core.Page
		ocrTotal   float64
		ocrSamples int
	)

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, core.WrapError(core.ErrTimeout, err, "PDF extraction cancelled")
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text := ""
		method := "pdf_text"
		if extracted, err := page.GetPlainText(nil); err != nil {
			log.Printf("[WARN] failed to extract text from page %d of %q: %v", i, filename, err)
		} else {
			text = extracted
		}

		if strings.TrimSpace(text) == "" && p.Recognizer != nil && p.Recognizer.Available() {
			// Text layer is empty; OCR the page image instead. Rasterising a
			// single page is delegated to the recognizer.
			ocrText, confidence, ocrErr := p.Recognizer.Recognize(ctx, data)
			if ocrErr != nil {
				log.Printf("[WARN] OCR fallback failed for page %d of %q: %v", i, filename, ocrErr)
				method = "ocr_failed"
			} else {
				text = ocrText
				method = "ocr_fallback"
				ocrTotal += confidence
				ocrSamples++
			}
		} else if strings.TrimSpace(text) == "" {
			method = "ocr_unavailable"
		}

		pages = append(pages, core.Page{
			PageNumber:       i,
			Text:             text,
			CharCount:        len(text),
			ExtractionMethod: method,
		})
		content.WriteString(text)
		content.WriteString("\n")
	}

	result := &core.ParseResult{
		Text:             content.String(),
		Pages:            pages,
		ProcessingMethod: "pdf",
		Metadata: map[string]interface{}{
			"page_count": len(pages),
		},
	}
	if ocrSamples > 0 {
		result.OCRConfidence = ocrTotal / float64(ocrSamples)
	}
	return result, nil
}

// ImageProcessor OCRs a raster image in one shot.
type ImageProcessor struct {
	Recognizer core.Recognizer
}

func (p *ImageProcessor) Process(ctx context.Context, data []byte, filename string) (*core.ParseResult, error) {
	if p.Recognizer == nil || !p.Recognizer.Available() {
		return &core.ParseResult{
			Text:             "",
			Pages:            []core.Page{{PageNumber: 1, ExtractionMethod: "ocr_unavailable"}},
			ProcessingMethod: "image_ocr",
		}, nil
	}

	text, confidence, err := p.Recognizer.Recognize(ctx, data)
	if err != nil {
		return nil, core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "OCR failed for %q", filename)
	}

	return &core.ParseResult{
		Text: text,
		Pages: []core.Page{{
			PageNumber:       1,
			Text:             text,
			CharCount:        len(text),
			ExtractionMethod: "ocr",
		}},
		OCRConfidence:    confidence,
		ProcessingMethod: "image_ocr",
		Metadata: map[string]interface{}{
			"ocr_confidence": confidence,
		},
	}, nil
}
