// Package config loads and validates the hybrid search configuration from a
// YAML file with environment-variable overrides. The resulting Config is
// validated once at startup and passed by value to every component; nothing
// downstream reads process environment on its own.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	State     StateConfig     `yaml:"state"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// EmbedderConfig selects and tunes the dense embedding provider.
type EmbedderConfig struct {
	Provider      string        `yaml:"provider"`
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"apiKey"`
	Model         string        `yaml:"model"`
	Dimension     int           `yaml:"dimension"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	CacheEnabled  bool          `yaml:"cacheEnabled"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string        `yaml:"backend"`
	Name    string        `yaml:"name"`
	Metric  string        `yaml:"metric"`
	Timeout time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig holds the SQLite database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// EncoderConfig holds the BM25 saturation parameters and the analyzer
// settings. StopWords replaces the built-in English list when set.
type EncoderConfig struct {
	K1              float64  `yaml:"k1"`
	B               float64  `yaml:"b"`
	StopWords       []string `yaml:"stopWords"`
	KeepStopWords   bool     `yaml:"keepStopWords"`
	DisableStemming bool     `yaml:"disableStemming"`
}

// StateConfig controls where fitted term statistics are persisted.
type StateConfig struct {
	Store       string `yaml:"store"`
	Dir         string `yaml:"dir"`
	Name        string `yaml:"name"`
	Compression string `yaml:"compression"`
}

// MinIOConfig holds S3-compatible object storage settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL"`
}

// RedisConfig holds Redis connection and embedding-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RetrievalConfig holds query defaults and ingestion parallelism.
type RetrievalConfig struct {
	DefaultAlpha     float64 `yaml:"defaultAlpha"`
	DefaultTopK      int     `yaml:"defaultTopK"`
	MaxTopK          int     `yaml:"maxTopK"`
	EmbedConcurrency int     `yaml:"embedConcurrency"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AnalyticsConfig controls publication of retrieval events.
type AnalyticsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"bufferSize"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config that runs fully offline: hash embeddings, an
// in-memory index and local state files.
func Default() *Config {
	return &Config{
		Embedder: EmbedderConfig{
			Provider:      "hash",
			URL:           "https://api-inference.huggingface.co/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2",
			Model:         "sentence-transformers/all-MiniLM-L6-v2",
			Dimension:     384,
			Timeout:       30 * time.Second,
			Retries:       1,
			RetryDelay:    200 * time.Millisecond,
			RatePerSecond: 10,
			Burst:         5,
		},
		Index: IndexConfig{
			Backend: "memory",
			Name:    "hybrid-search",
			Metric:  "dotproduct",
			Timeout: 30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hybridsearch",
			User:            "hybridsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/hybridsearch.db",
		},
		Encoder: EncoderConfig{
			K1: 1.2,
			B:  0.75,
		},
		State: StateConfig{
			Store:       "local",
			Dir:         "data",
			Name:        "bm25_values.hsts",
			Compression: "zstd",
		},
		MinIO: MinIOConfig{
			Endpoint: "localhost:9000",
			Bucket:   "hybridsearch",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "retrieval-events",
		},
		Retrieval: RetrievalConfig{
			DefaultAlpha:     0.5,
			DefaultTopK:      3,
			MaxTopK:          100,
			EmbedConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			Enabled:    false,
			BufferSize: 1000,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Embedder.Provider {
	case "hash":
	case "http":
		if c.Embedder.URL == "" {
			problems = append(problems, "embedder.url is required for the http provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown embedder.provider %q", c.Embedder.Provider))
	}
	if c.Embedder.Dimension <= 0 {
		problems = append(problems, "embedder.dimension must be positive")
	}
	if c.Embedder.Retries < 0 {
		problems = append(problems, "embedder.retries must not be negative")
	}
	switch c.Index.Backend {
	case "memory", "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown index.backend %q", c.Index.Backend))
	}
	switch c.Index.Metric {
	case "dotproduct", "cosine":
	default:
		problems = append(problems, fmt.Sprintf("unknown index.metric %q", c.Index.Metric))
	}
	if c.Index.Name == "" {
		problems = append(problems, "index.name is required")
	}
	if c.Encoder.K1 <= 0 {
		problems = append(problems, "encoder.k1 must be positive")
	}
	if c.Encoder.B < 0 || c.Encoder.B > 1 {
		problems = append(problems, "encoder.b must be within [0,1]")
	}
	switch c.State.Store {
	case "none", "local", "minio":
	default:
		problems = append(problems, fmt.Sprintf("unknown state.store %q", c.State.Store))
	}
	switch c.State.Compression {
	case "none", "zstd", "lz4":
	default:
		problems = append(problems, fmt.Sprintf("unknown state.compression %q", c.State.Compression))
	}
	if c.Retrieval.DefaultAlpha < 0 || c.Retrieval.DefaultAlpha > 1 {
		problems = append(problems, "retrieval.defaultAlpha must be within [0,1]")
	}
	if c.Retrieval.DefaultTopK <= 0 || c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		problems = append(problems, "retrieval.defaultTopK must be within [1,maxTopK]")
	}
	if c.Retrieval.EmbedConcurrency <= 0 {
		problems = append(problems, "retrieval.embedConcurrency must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvOverrides reads HS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HS_EMBEDDER_PROVIDER"); v != "" {
		cfg.Embedder.Provider = v
	}
	if v := os.Getenv("HS_EMBEDDER_URL"); v != "" {
		cfg.Embedder.URL = v
	}
	if v := os.Getenv("HS_EMBEDDER_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := os.Getenv("HS_EMBEDDER_DIMENSION"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			cfg.Embedder.Dimension = dim
		}
	}
	if v := os.Getenv("HS_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("HS_INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("HS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("HS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("HS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("HS_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("HS_STATE_STORE"); v != "" {
		cfg.State.Store = v
	}
	if v := os.Getenv("HS_STATE_DIR"); v != "" {
		cfg.State.Dir = v
	}
	if v := os.Getenv("HS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("HS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("HS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
