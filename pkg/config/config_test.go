package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DOCINDEXER_HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7231, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Indexer.MaxWorkers)
	assert.Equal(t, 3, cfg.Indexer.MaxRetries)
	assert.Equal(t, 3600, cfg.Indexer.CacheTTLSeconds)
	assert.Equal(t, "local", cfg.Embedder.Provider)
	assert.Equal(t, 384, cfg.Embedder.VectorDimension)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, filepath.Join(home, "data", "fragments.db"), cfg.Store.DBPath)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.InDelta(t, 0.3, cfg.Search.SimilarityThresholdDefault, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docindexer.toml")
	content := `
log_level = "debug"

[server]
port = 9000

[embedder]
provider = "local"
vector_dimension = 128

[store]
backend = "sqlite"
db_path = "` + filepath.Join(dir, "frags.db") + `"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 128, cfg.Embedder.VectorDimension)
	assert.Equal(t, filepath.Join(dir, "frags.db"), cfg.Store.DBPath)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"zero workers", func(c *Config) { c.Indexer.MaxWorkers = 0 }},
		{"bad provider", func(c *Config) { c.Embedder.Provider = "sentencepiece" }},
		{"bad backend", func(c *Config) { c.Store.Backend = "pinecone" }},
		{"limit above max", func(c *Config) { c.Search.DefaultLimit = 100 }},
		{"threshold above one", func(c *Config) { c.Search.SimilarityThresholdDefault = 1.5 }},
		{"zero min chunk", func(c *Config) { c.Chunker.MinChunkSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docindexer.toml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default(t.TempDir())
	assert.NoError(t, cfg.Validate())
}

func TestExpandHomePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), expandHomePath("~/x"))
	assert.Equal(t, "/abs/x", expandHomePath("/abs/x"))
}
