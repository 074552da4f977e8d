package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g. RECALL_CACHE_SEMANTIC_CAPACITY
const EnvPrefix = "RECALL"

// Config is the complete server configuration
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector" yaml:"vector"`
	Graph     GraphConfig     `mapstructure:"graph" yaml:"graph"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type CacheConfig struct {
	SemanticCapacity int `mapstructure:"semantic_capacity" yaml:"semantic_capacity"`
	SessionCapacity  int `mapstructure:"session_capacity" yaml:"session_capacity"`
}

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	Dimension int    `mapstructure:"dimension" yaml:"dimension"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

type VectorConfig struct {
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Path    string       `mapstructure:"path" yaml:"path"`
	Milvus  MilvusConfig `mapstructure:"milvus" yaml:"milvus"`
}

type MilvusConfig struct {
	Address    string `mapstructure:"address" yaml:"address"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

type GraphConfig struct {
	Backend    string      `mapstructure:"backend" yaml:"backend"`
	SQLitePath string      `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Neo4j      Neo4jConfig `mapstructure:"neo4j" yaml:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// IngestConfig tunes the embedding fan-out of AddMessages; zero values use the indexer defaults
type IngestConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Enumerated backend and transport names
const (
	VectorChromem = "chromem"
	VectorMilvus  = "milvus"

	GraphSQLite = "sqlite"
	GraphNeo4j  = "neo4j"

	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// SetDefaults registers every key with its default. Keys must be registered
// for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cache.semantic_capacity", 100)
	v.SetDefault("cache.session_capacity", 50)

	v.SetDefault("embedding.provider", embedder.ProviderLocal)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("vector.backend", VectorChromem)
	v.SetDefault("vector.path", "")
	v.SetDefault("vector.milvus.address", "localhost:19530")
	v.SetDefault("vector.milvus.username", "")
	v.SetDefault("vector.milvus.password", "")
	v.SetDefault("vector.milvus.collection", "recall_messages")

	v.SetDefault("graph.backend", GraphSQLite)
	v.SetDefault("graph.sqlite_path", "~/.recall/graph.db")
	v.SetDefault("graph.neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("graph.neo4j.username", "neo4j")
	v.SetDefault("graph.neo4j.password", "")
	v.SetDefault("graph.neo4j.database", "")

	v.SetDefault("ingest.workers", 0)
	v.SetDefault("ingest.batch_size", 0)

	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// NewViper returns a viper instance with defaults and RECALL_ environment overrides registered
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads a .env file into the process environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ReadFile reads configFile into v. With an empty path, recall.yaml is looked up
// in the working directory and ~/.recall; not finding one is fine.
func ReadFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	v.SetConfigName("recall")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".recall"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// Load reads .env into the environment, then the config file; the environment wins over the file
func Load(configFile string) (*Config, error) {
	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	v := NewViper()
	if err := ReadFile(v, configFile); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes, resolves and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve fills provider-dependent defaults and expands ~ in paths
func (c *Config) resolve() error {
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
	c.Vector.Backend = strings.ToLower(c.Vector.Backend)
	c.Graph.Backend = strings.ToLower(c.Graph.Backend)
	c.Server.Transport = strings.ToLower(c.Server.Transport)

	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = embedder.DefaultDimension(c.Embedding.Provider)
	}

	var err error
	if c.Graph.SQLitePath, err = expandHome(c.Graph.SQLitePath); err != nil {
		return err
	}
	if c.Vector.Path, err = expandHome(c.Vector.Path); err != nil {
		return err
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate rejects non-positive sizes and unknown enum values
func (c *Config) Validate() error {
	var errs []string

	if c.Cache.SemanticCapacity <= 0 {
		errs = append(errs, "cache.semantic_capacity must be positive")
	}
	if c.Cache.SessionCapacity <= 0 {
		errs = append(errs, "cache.session_capacity must be positive")
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, "embedding.dimension must be positive")
	}
	if c.Embedding.CacheSize < 0 {
		errs = append(errs, "embedding.cache_size must not be negative")
	}
	if c.Ingest.Workers < 0 || c.Ingest.BatchSize < 0 {
		errs = append(errs, "ingest settings must not be negative")
	}

	validProviders := map[string]bool{
		embedder.ProviderLocal:  true,
		embedder.ProviderOpenAI: true,
		embedder.ProviderJina:   true,
		embedder.ProviderOllama: true,
	}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, fmt.Sprintf("invalid embedding.provider: %s", c.Embedding.Provider))
	}
	if c.Vector.Backend != VectorChromem && c.Vector.Backend != VectorMilvus {
		errs = append(errs, fmt.Sprintf("invalid vector.backend: %s", c.Vector.Backend))
	}
	if c.Graph.Backend != GraphSQLite && c.Graph.Backend != GraphNeo4j {
		errs = append(errs, fmt.Sprintf("invalid graph.backend: %s", c.Graph.Backend))
	}
	switch c.Server.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		errs = append(errs, fmt.Sprintf("invalid server.transport: %s", c.Server.Transport))
	}
	if c.Graph.Backend == GraphSQLite && c.Graph.SQLitePath == "" {
		errs = append(errs, "graph.sqlite_path is required for the sqlite backend")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EmbedderConfig converts the embedding section for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
	}
}

// LoggerOptions converts the log section for logger.Init
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File:   c.Log.File,
	}
}
