package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// VectorStore configuration
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// NLP configuration
	NLP NLPConfig `mapstructure:"nlp"`

	// Build configuration
	Build BuildConfig `mapstructure:"build"`

	// Search configuration
	Search SearchConfig `mapstructure:"search"`

	// Retry configuration
	Retry RetryConfig `mapstructure:"retry"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds graph database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// VectorStoreConfig holds embedding index configuration
type VectorStoreConfig struct {
	// Path is the on-disk location of the vector index. Empty runs
	// in-memory.
	Path string `mapstructure:"path"`
}

// EmbeddingConfig holds embedding model configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, mock
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// NLPConfig holds answer-synthesis model configuration
type NLPConfig struct {
	Provider    string  `mapstructure:"provider"` // openai, mock
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// BuildConfig holds graph construction configuration
type BuildConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	Workers        int           `mapstructure:"workers"`
	Concurrency    int           `mapstructure:"concurrency"`
	CheckpointPath string        `mapstructure:"checkpoint_path"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
}

// SearchConfig holds hybrid retrieval configuration
type SearchConfig struct {
	TopK           int           `mapstructure:"top_k"`
	MaxDepth       int           `mapstructure:"max_depth"`
	VectorWeight   float64       `mapstructure:"vector_weight"`
	GraphWeight    float64       `mapstructure:"graph_weight"`
	Limit          int           `mapstructure:"limit"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	BatchParallel  int           `mapstructure:"batch_parallel"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	// Database defaults
	viper.SetDefault("database.driver", "neo4j")
	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.database", "neo4j")

	// Vector store defaults
	viper.SetDefault("vector_store.path", "./expertgraph_vectors")

	// Embedding defaults
	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1024)
	viper.SetDefault("embedding.batch_size", 64)

	// NLP defaults
	viper.SetDefault("nlp.provider", "openai")
	viper.SetDefault("nlp.model", "gpt-4o-mini")
	viper.SetDefault("nlp.temperature", 0.2)
	viper.SetDefault("nlp.max_tokens", 1024)

	// Build defaults
	viper.SetDefault("build.batch_size", 100)
	viper.SetDefault("build.workers", 4)
	viper.SetDefault("build.concurrency", 4)
	viper.SetDefault("build.checkpoint_path", "./expertgraph_checkpoint.json")
	viper.SetDefault("build.batch_timeout", "60s")
	viper.SetDefault("build.chunk_size", 2000)
	viper.SetDefault("build.chunk_overlap", 200)

	// Search defaults
	viper.SetDefault("search.top_k", 10)
	viper.SetDefault("search.max_depth", 2)
	viper.SetDefault("search.vector_weight", 0.5)
	viper.SetDefault("search.graph_weight", 0.5)
	viper.SetDefault("search.limit", 20)
	viper.SetDefault("search.query_timeout", "60s")
	viper.SetDefault("search.batch_parallel", 4)
	viper.SetDefault("search.request_timeout", "30s")

	// Retry defaults
	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("retry.base_delay", "500ms")
	viper.SetDefault("retry.max_delay", "30s")
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("retry.jitter", 0.2)

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.expertgraph/telemetry", home)
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
		if config.NLP.APIKey == "" {
			config.NLP.APIKey = apiKey
		}
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		if config.Embedding.BaseURL == "" {
			config.Embedding.BaseURL = baseURL
		}
		if config.NLP.BaseURL == "" {
			config.NLP.BaseURL = baseURL
		}
	}

	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}
}
