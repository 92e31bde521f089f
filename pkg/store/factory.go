package store

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
)

// New creates the vector store named by the configured backend.
func New(cfg config.StoreConfig, dimension int) (core.VectorStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DBPath, dimension)
	case "qdrant":
		host := cfg.QdrantHost
		if host == "" {
			host = "localhost"
		}
		port := cfg.QdrantPort
		if port == 0 {
			port = 6334
		}
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		return NewQdrantStore(addr, cfg.Collection, dimension)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
