package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlex/docindexer/pkg/core"
)

func TestParseUnsupportedType(t *testing.T) {
	p := New(nil)

	_, err := p.Parse(context.Background(), []byte("data"), "application/x-unknown", "file.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}

func TestParseZeroByteDocument(t *testing.T) {
	p := New(nil)

	_, err := p.Parse(context.Background(), nil, "text/plain", "empty.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmptyContent)
}

func TestParsePlainText(t *testing.T) {
	p := New(nil)

	result, err := p.Parse(context.Background(), []byte("Coffee receipt\nTotal: $4.50\n"), "text/plain", "receipt.txt")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Total: $4.50")
	assert.Equal(t, core.ClassExpenseDocument, result.Class)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "text_file", result.Pages[0].ExtractionMethod)
}

func TestParseMimeFallbackFromExtension(t *testing.T) {
	p := New(nil)

	result, err := p.Parse(context.Background(), []byte("plain content"), "", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain content", result.Text)
}

func TestParseLatin1Fallback(t *testing.T) {
	p := New(nil)

	// 0xE9 is é in Latin-1 but invalid as a standalone UTF-8 byte.
	data := []byte{'c', 'a', 'f', 0xE9, ' ', '4', '.', '5', '0'}
	result, err := p.Parse(context.Background(), data, "text/plain", "cafe.txt")
	require.NoError(t, err)
	assert.Equal(t, "text_file_latin1", result.ProcessingMethod)
	assert.Contains(t, result.Text, "café")
}

func TestParseMimeNormalisation(t *testing.T) {
	p := New(nil)

	result, err := p.Parse(context.Background(), []byte("a,b\n1,2"), "Text/CSV; charset=utf-8", "data.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)

	assert.True(t, p.Supports("image/jpg"))
	assert.True(t, p.Supports("IMAGE/JPEG"))
}

func TestParseImageWithoutRecognizer(t *testing.T) {
	p := New(nil)

	result, err := p.Parse(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "image/jpeg", "scan.jpg")
	require.NoError(t, err)
	assert.Empty(t, result.Text)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "ocr_unavailable", result.Pages[0].ExtractionMethod)
}

func TestParseImageWithRecognizer(t *testing.T) {
	rec := &core.SimpleRecognizer{Text: "STARBUCKS\nLatte $5.25\nTotal: $5.25", Confidence: 0.91}
	p := New(rec)

	result, err := p.Parse(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png", "receipt.png")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Latte")
	assert.InDelta(t, 0.91, result.OCRConfidence, 1e-9)
	assert.Equal(t, core.ClassExpenseDocument, result.Class)
}

func TestParseHTMLReceipt(t *testing.T) {
	p := New(nil)

	html := `<html><head><style>.x{}</style></head><body>
		<h1>Order Confirmation</h1>
		<table><tr><td>Latte</td><td>$5.25</td></tr><tr><td>Total</td><td>$5.25</td></tr></table>
		<p>Thank you for your purchase</p>
		<script>track();</script>
	</body></html>`

	result, err := p.Parse(context.Background(), []byte(html), "text/html", "order.html")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Latte\t$5.25")
	assert.Contains(t, result.Text, "Thank you for your purchase")
	assert.NotContains(t, result.Text, "track()")
}

func TestSupportedTypes(t *testing.T) {
	p := New(nil)

	types := p.SupportedTypes()
	assert.Contains(t, types, "application/pdf")
	assert.Contains(t, types, "image/jpeg")
	assert.Contains(t, types, "text/plain")
	assert.NotContains(t, types, "image/jpg") // normalised away
}
