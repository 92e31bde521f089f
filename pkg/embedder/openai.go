package embedder

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/finlex/docindexer/pkg/core"
)

// OpenAIEmbedder delegates to an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an embedder backed by the embeddings API. BaseURL
// may point at any OpenAI-compatible server.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model cannot be empty")
	}
	if dim <= 0 {
		dim = DefaultDimension
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
		dim:    dim,
	}, nil
}

// Dimension returns the configured vector width.
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Embed generates embeddings via the remote API. Failures surface as
// upstream errors so the indexer retries them.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Dimensions: openai.Int(int64(e.dim)),
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, core.WrapErrorWithContext(core.ErrUpstreamUnavailable, nil,
			"embedding count mismatch: want %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != e.dim {
			return nil, core.WrapErrorWithContext(core.ErrDimensionMismatch, nil,
				"model returned dimension %d, store expects %d", len(d.Embedding), e.dim)
		}
		vec := make([]float64, len(d.Embedding))
		copy(vec, d.Embedding)
		vectors[i] = vec
	}
	return vectors, nil
}
