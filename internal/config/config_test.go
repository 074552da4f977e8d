package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recall-mcp/internal/embedder"
)

func TestFromViper_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := FromViper(NewViper())
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Cache.SemanticCapacity)
	assert.Equal(t, 50, cfg.Cache.SessionCapacity)
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, embedder.LocalDimension, cfg.Embedding.Dimension)
	assert.Equal(t, 10000, cfg.Embedding.CacheSize)
	assert.Equal(t, VectorChromem, cfg.Vector.Backend)
	assert.Equal(t, "recall_messages", cfg.Vector.Milvus.Collection)
	assert.Equal(t, GraphSQLite, cfg.Graph.Backend)
	assert.Equal(t, filepath.Join(home, ".recall", "graph.db"), cfg.Graph.SQLitePath)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Graph.Neo4j.URI)
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFromViper_EnvOverrides(t *testing.T) {
	t.Setenv("RECALL_CACHE_SEMANTIC_CAPACITY", "7")
	t.Setenv("RECALL_EMBEDDING_PROVIDER", "OpenAI")
	t.Setenv("RECALL_GRAPH_NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("RECALL_SERVER_TRANSPORT", "sse")

	cfg, err := FromViper(NewViper())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Cache.SemanticCapacity)
	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, embedder.OpenAIDimension, cfg.Embedding.Dimension, "dimension follows the provider")
	assert.Equal(t, "neo4j://graph:7687", cfg.Graph.Neo4j.URI)
	assert.Equal(t, TransportSSE, cfg.Server.Transport)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	content := `
cache:
  semantic_capacity: 3
embedding:
  dimension: 16
vector:
  backend: milvus
  milvus:
    address: milvus:19530
graph:
  sqlite_path: /tmp/recall.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("RECALL_CACHE_SESSION_CAPACITY", "9")

	v := NewViper()
	require.NoError(t, ReadFile(v, path))
	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Cache.SemanticCapacity)
	assert.Equal(t, 9, cfg.Cache.SessionCapacity)
	assert.Equal(t, 16, cfg.Embedding.Dimension)
	assert.Equal(t, VectorMilvus, cfg.Vector.Backend)
	assert.Equal(t, "milvus:19530", cfg.Vector.Milvus.Address)
	assert.Equal(t, "/tmp/recall.db", cfg.Graph.SQLitePath)
}

func TestReadFile_ExplicitMissing(t *testing.T) {
	err := ReadFile(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RECALL_LOG_LEVEL=debug\n"), 0o600))

	// registered through t.Setenv so the variable is restored afterwards
	t.Setenv("RECALL_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("RECALL_LOG_LEVEL"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "debug", os.Getenv("RECALL_LOG_LEVEL"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := FromViper(NewViper())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero semantic capacity", mutate: func(c *Config) { c.Cache.SemanticCapacity = 0 }, wantErr: "cache.semantic_capacity"},
		{name: "negative session capacity", mutate: func(c *Config) { c.Cache.SessionCapacity = -1 }, wantErr: "cache.session_capacity"},
		{name: "zero dimension", mutate: func(c *Config) { c.Embedding.Dimension = 0 }, wantErr: "embedding.dimension"},
		{name: "unknown provider", mutate: func(c *Config) { c.Embedding.Provider = "cohere" }, wantErr: "embedding.provider"},
		{name: "unknown vector backend", mutate: func(c *Config) { c.Vector.Backend = "qdrant" }, wantErr: "vector.backend"},
		{name: "unknown graph backend", mutate: func(c *Config) { c.Graph.Backend = "dgraph" }, wantErr: "graph.backend"},
		{name: "unknown transport", mutate: func(c *Config) { c.Server.Transport = "ws" }, wantErr: "server.transport"},
		{name: "negative ingest workers", mutate: func(c *Config) { c.Ingest.Workers = -2 }, wantErr: "ingest"},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Graph.SQLitePath = "" }, wantErr: "graph.sqlite_path"},
		{name: "neo4j needs no sqlite path", mutate: func(c *Config) { c.Graph.Backend = GraphNeo4j; c.Graph.SQLitePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg, err := FromViper(NewViper())
	require.NoError(t, err)
	cfg.Embedding.APIKey = "k"
	cfg.Log.File = "/tmp/recall.log"

	ec := cfg.EmbedderConfig()
	assert.Equal(t, embedder.ProviderLocal, ec.Provider)
	assert.Equal(t, "k", ec.APIKey)
	assert.Equal(t, cfg.Embedding.Dimension, ec.Dimension)

	lo := cfg.LoggerOptions()
	assert.Equal(t, "info", lo.Level)
	assert.Equal(t, "/tmp/recall.log", lo.File)
}
