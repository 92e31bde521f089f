package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

func TestFetchUsesContentTypeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf; charset=binary")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.FetchConfig{})
	data, mimeType, err := f.Fetch(context.Background(), srv.URL+"/receipt")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mimeType)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
}

func TestFetchFallsBackToExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.FetchConfig{})
	_, mimeType, err := f.Fetch(context.Background(), srv.URL+"/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mimeType)
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.FetchConfig{MaxBytes: 1024})
	_, _, err := f.Fetch(context.Background(), srv.URL+"/big.txt")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestFetchNon200IsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.FetchConfig{})
	_, _, err := f.Fetch(context.Background(), srv.URL+"/doc.pdf")
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestFetchRejectsBadScheme(t *testing.T) {
	f := NewHTTPFetcher(config.FetchConfig{})
	_, _, err := f.Fetch(context.Background(), "ftp://example.com/doc.pdf")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "receipt.pdf", Filename("https://cdn.example.com/docs/receipt.pdf?sig=abc"))
	assert.Equal(t, "", Filename("https://cdn.example.com/"))
}
