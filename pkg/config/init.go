package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Default returns the built-in configuration, paths resolved under home.
func Default(home string) *Config {
	if home == "" {
		home = expandHomePath("~/.docindexer")
	}
	return &Config{
		Home:     home,
		LogLevel: "info",
		Server: ServerConfig{
			Port:                  7231,
			Host:                  "0.0.0.0",
			CORSOrigins:           []string{"*"},
			RequestTimeoutSeconds: 30,
		},
		Indexer: IndexerConfig{
			MaxWorkers:               4,
			BatchSize:                8,
			EnableParallelProcessing: true,
			AutoRetryFailed:          false,
			MaxRetries:               3,
			ChunkBatchSize:           100,
			ProcessingTimeoutSeconds: 300,
			CacheTTLSeconds:          3600,
		},
		Embedder: EmbedderConfig{
			Provider:        "local",
			VectorDimension: 384,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			DBPath:     filepath.Join(home, "data", "fragments.db"),
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "expense_documents",
		},
		Search: SearchConfig{
			DefaultLimit:               10,
			MaxLimit:                   50,
			SimilarityThresholdDefault: 0.3,
			EnableDeduplication:        true,
			CacheSize:                  256,
			RequestTimeoutSeconds:      10,
		},
		Chunker: ChunkerConfig{
			MinChunkSize:       100,
			SemanticThreshold:  0.5,
			TokenCountingModel: "cl100k_base",
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 60,
			MaxBytes:       50 * 1024 * 1024,
		},
	}
}

// WriteDefault writes the default configuration as TOML to path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = filepath.Join(expandHomePath("~/.docindexer"), "docindexer.toml")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	cfg := Default(filepath.Dir(path))
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	ensureParentDir(path)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
