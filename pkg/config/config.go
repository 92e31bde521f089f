package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Home     string        `mapstructure:"home" toml:"home"`
	LogLevel string        `mapstructure:"log_level" toml:"log_level"`
	Server   ServerConfig  `mapstructure:"server" toml:"server"`
	Indexer  IndexerConfig `mapstructure:"indexer" toml:"indexer"`
	Embedder EmbedderConfig `mapstructure:"embedder" toml:"embedder"`
	Store    StoreConfig   `mapstructure:"store" toml:"store"`
	Search   SearchConfig  `mapstructure:"search" toml:"search"`
	Chunker  ChunkerConfig `mapstructure:"chunker" toml:"chunker"`
	Fetch    FetchConfig   `mapstructure:"fetch" toml:"fetch"`
}

type ServerConfig struct {
	Port                  int      `mapstructure:"port" toml:"port"`
	Host                  string   `mapstructure:"host" toml:"host"`
	CORSOrigins           []string `mapstructure:"cors_origins" toml:"cors_origins"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds" toml:"request_timeout_seconds"`
}

type IndexerConfig struct {
	MaxWorkers               int  `mapstructure:"max_workers" toml:"max_workers"`
	BatchSize                int  `mapstructure:"batch_size" toml:"batch_size"`
	EnableParallelProcessing bool `mapstructure:"enable_parallel_processing" toml:"enable_parallel_processing"`
	AutoRetryFailed          bool `mapstructure:"auto_retry_failed" toml:"auto_retry_failed"`
	MaxRetries               int  `mapstructure:"max_retries" toml:"max_retries"`
	ChunkBatchSize           int  `mapstructure:"chunk_batch_size" toml:"chunk_batch_size"`
	ProcessingTimeoutSeconds int  `mapstructure:"processing_timeout_seconds" toml:"processing_timeout_seconds"`
	CacheTTLSeconds          int  `mapstructure:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
}

type EmbedderConfig struct {
	Provider        string `mapstructure:"provider" toml:"provider"`
	Model           string `mapstructure:"model" toml:"model"`
	APIKey          string `mapstructure:"api_key" toml:"api_key"`
	BaseURL         string `mapstructure:"base_url" toml:"base_url"`
	VectorDimension int    `mapstructure:"vector_dimension" toml:"vector_dimension"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend" toml:"backend"`
	DBPath     string `mapstructure:"db_path" toml:"db_path"`
	QdrantHost string `mapstructure:"qdrant_host" toml:"qdrant_host"`
	QdrantPort int    `mapstructure:"qdrant_port" toml:"qdrant_port"`
	Collection string `mapstructure:"collection" toml:"collection"`
}

type SearchConfig struct {
	DefaultLimit               int     `mapstructure:"default_limit" toml:"default_limit"`
	MaxLimit                   int     `mapstructure:"max_limit" toml:"max_limit"`
	SimilarityThresholdDefault float64 `mapstructure:"similarity_threshold_default" toml:"similarity_threshold_default"`
	EnableDeduplication        bool    `mapstructure:"enable_deduplication" toml:"enable_deduplication"`
	CacheSize                  int     `mapstructure:"cache_size" toml:"cache_size"`
	RequestTimeoutSeconds      int     `mapstructure:"request_timeout_seconds" toml:"request_timeout_seconds"`
}

type ChunkerConfig struct {
	MinChunkSize        int     `mapstructure:"min_chunk_size" toml:"min_chunk_size"`
	SemanticThreshold   float64 `mapstructure:"semantic_threshold" toml:"semantic_threshold"`
	TokenCountingModel  string  `mapstructure:"token_counting_model" toml:"token_counting_model"`
}

type FetchConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxBytes       int64 `mapstructure:"max_bytes" toml:"max_bytes"`
}

func Load(configPath string) (*Config, error) {
	config := &Config{}

	home := os.Getenv("DOCINDEXER_HOME")
	if home == "" {
		home = "~/.docindexer"
	}
	home = expandHomePath(home)

	if configPath != "" {
		absPath, _ := filepath.Abs(configPath)
		viper.SetConfigFile(absPath)
		home = filepath.Dir(absPath)
	} else {
		// Check order:
		// 1. ./docindexer.toml
		// 2. ~/.docindexer/docindexer.toml
		if _, err := os.Stat("docindexer.toml"); err == nil {
			abs, _ := filepath.Abs("docindexer.toml")
			viper.SetConfigFile(abs)
			home = filepath.Dir(abs)
		} else {
			viper.SetConfigFile(filepath.Join(home, "docindexer.toml"))
		}
	}

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		// Missing default config is fine, we continue with defaults
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Home == "" {
		config.Home = home
	}
	config.Home = expandHomePath(config.Home)

	config.resolveDatabasePath()
	config.expandPaths()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 7231)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("server.request_timeout_seconds", 30)

	viper.SetDefault("indexer.max_workers", 4)
	viper.SetDefault("indexer.batch_size", 8)
	viper.SetDefault("indexer.enable_parallel_processing", true)
	viper.SetDefault("indexer.auto_retry_failed", false)
	viper.SetDefault("indexer.max_retries", 3)
	viper.SetDefault("indexer.chunk_batch_size", 100)
	viper.SetDefault("indexer.processing_timeout_seconds", 300)
	viper.SetDefault("indexer.cache_ttl_seconds", 3600)

	viper.SetDefault("embedder.provider", "local")
	viper.SetDefault("embedder.model", "")
	viper.SetDefault("embedder.vector_dimension", 384)

	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.qdrant_host", "localhost")
	viper.SetDefault("store.qdrant_port", 6334)
	viper.SetDefault("store.collection", "expense_documents")

	viper.SetDefault("search.default_limit", 10)
	viper.SetDefault("search.max_limit", 50)
	viper.SetDefault("search.similarity_threshold_default", 0.3)
	viper.SetDefault("search.enable_deduplication", true)
	viper.SetDefault("search.cache_size", 256)
	viper.SetDefault("search.request_timeout_seconds", 10)

	viper.SetDefault("chunker.min_chunk_size", 100)
	viper.SetDefault("chunker.semantic_threshold", 0.5)
	viper.SetDefault("chunker.token_counting_model", "cl100k_base")

	viper.SetDefault("fetch.timeout_seconds", 60)
	viper.SetDefault("fetch.max_bytes", 50*1024*1024)
}

func bindEnvVars() {
	viper.SetEnvPrefix("DOCINDEXER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		"home":                                 "DOCINDEXER_HOME",
		"server.port":                          "DOCINDEXER_SERVER_PORT",
		"server.host":                          "DOCINDEXER_SERVER_HOST",
		"store.backend":                        "DOCINDEXER_STORE_BACKEND",
		"store.db_path":                        "DOCINDEXER_STORE_DB_PATH",
		"store.qdrant_host":                    "DOCINDEXER_STORE_QDRANT_HOST",
		"embedder.provider":                    "DOCINDEXER_EMBEDDER_PROVIDER",
		"embedder.api_key":                     "DOCINDEXER_EMBEDDER_API_KEY",
		"embedder.vector_dimension":            "DOCINDEXER_EMBEDDER_VECTOR_DIMENSION",
		"indexer.max_workers":                  "DOCINDEXER_INDEXER_MAX_WORKERS",
		"indexer.enable_parallel_processing":   "DOCINDEXER_INDEXER_ENABLE_PARALLEL_PROCESSING",
		"search.similarity_threshold_default":  "DOCINDEXER_SEARCH_SIMILARITY_THRESHOLD_DEFAULT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Printf("Warning: failed to bind %s env var: %v", key, err)
		}
	}
}

// DataDir returns the path to the data directory
func (c *Config) DataDir() string {
	return filepath.Join(c.Home, "data")
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Indexer.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive: %d", c.Indexer.MaxWorkers)
	}
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive: %d", c.Indexer.BatchSize)
	}
	if c.Indexer.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative: %d", c.Indexer.MaxRetries)
	}
	if c.Indexer.ChunkBatchSize <= 0 {
		return fmt.Errorf("chunk_batch_size must be positive: %d", c.Indexer.ChunkBatchSize)
	}
	if c.Indexer.ProcessingTimeoutSeconds <= 0 {
		return fmt.Errorf("processing_timeout_seconds must be positive: %d", c.Indexer.ProcessingTimeoutSeconds)
	}
	if c.Indexer.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_seconds must be positive: %d", c.Indexer.CacheTTLSeconds)
	}

	if c.Embedder.VectorDimension <= 0 {
		return fmt.Errorf("vector_dimension must be positive: %d", c.Embedder.VectorDimension)
	}
	validProviders := map[string]bool{"local": true, "openai": true}
	if !validProviders[strings.ToLower(c.Embedder.Provider)] {
		return fmt.Errorf("invalid embedder provider: %s (supported: local, openai)", c.Embedder.Provider)
	}

	validBackends := map[string]bool{"sqlite": true, "qdrant": true}
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		return fmt.Errorf("invalid store backend: %s (supported: sqlite, qdrant)", c.Store.Backend)
	}
	if strings.ToLower(c.Store.Backend) == "sqlite" && c.Store.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("default_limit must be in (0, max_limit]: %d", c.Search.DefaultLimit)
	}
	if c.Search.SimilarityThresholdDefault < 0 || c.Search.SimilarityThresholdDefault > 1 {
		return fmt.Errorf("similarity_threshold_default must be in [0, 1]: %f", c.Search.SimilarityThresholdDefault)
	}

	if c.Chunker.MinChunkSize <= 0 {
		return fmt.Errorf("min_chunk_size must be positive: %d", c.Chunker.MinChunkSize)
	}

	return nil
}

func (c *Config) resolveDatabasePath() {
	if c.Store.DBPath != "" {
		return
	}
	c.Store.DBPath = filepath.Join(c.DataDir(), "fragments.db")
}

func (c *Config) expandPaths() {
	c.Home = expandHomePath(c.Home)
	c.Store.DBPath = expandHomePath(c.Store.DBPath)
	ensureParentDir(c.Store.DBPath)
}

func expandHomePath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func ensureParentDir(filePath string) {
	if filePath == "" {
		return
	}
	dir := filepath.Dir(filePath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Warning: failed to create directory %s: %v", dir, err)
		}
	}
}
