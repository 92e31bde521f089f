package embedder

import (
	"fmt"
	"strings"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

// New creates an Embedder from configuration. The returned embedder's
// dimension always equals cfg.VectorDimension.
func New(cfg config.EmbedderConfig) (core.Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		return NewLocalEmbedder(cfg.VectorDimension), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.VectorDimension)
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}
