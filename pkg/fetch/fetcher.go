package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 50 << 20
)

// HTTPFetcher downloads document bytes from http(s) source URLs with a
// timeout and a hard size cap.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher from config, applying defaults for unset
// fields.
func NewHTTPFetcher(cfg config.FetchConfig) *HTTPFetcher {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxBytes := int64(defaultMaxBytes)
	if cfg.MaxBytes > 0 {
		maxBytes = cfg.MaxBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads sourceURL and returns the body plus the best MIME type it
// can determine: the Content-Type header when present, otherwise a guess from
// the URL path extension.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", core.WrapErrorWithContext(core.ErrBadRequest, err, "invalid source_url %q", sourceURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", core.WrapError(core.ErrBadRequest, err, "build request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", core.WrapErrorWithContext(core.ErrTimeout, err, "fetch %s", sourceURL)
		}
		return nil, "", core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "fetch %s", sourceURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", core.WrapErrorWithContext(core.ErrUpstreamUnavailable, nil,
			"fetch %s: status %d", sourceURL, resp.StatusCode)
	}

	if resp.ContentLength > f.maxBytes {
		return nil, "", core.WrapErrorWithContext(core.ErrBadRequest, nil,
			"document at %s exceeds %d byte limit", sourceURL, f.maxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "read body of %s", sourceURL)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", core.WrapErrorWithContext(core.ErrBadRequest, nil,
			"document at %s exceeds %d byte limit", sourceURL, f.maxBytes)
	}

	mimeType := cleanContentType(resp.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		if guessed := mimeFromPath(parsed.Path); guessed != "" {
			mimeType = guessed
		}
	}
	if mimeType == "" {
		log.Printf("[WARN] no content type for %s, parser will rely on filename", sourceURL)
	}

	return body, mimeType, nil
}

func cleanContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func mimeFromPath(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html"
	default:
		return ""
	}
}

var _ core.ObjectFetcher = (*HTTPFetcher)(nil)

// Filename derives a parser filename hint from a source URL.
func Filename(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
