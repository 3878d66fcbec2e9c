// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Qdrant, Embedding, Lexical,
// Fusion, Search).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fusion strategy names accepted by FusionConfig.Strategy.
const (
	StrategyRRF      = "rrf"
	StrategyWeighted = "weighted"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for book, chunk, and
// summary storage.
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

// RedisConfig holds Redis connection and retrieval-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	BookIngested string `yaml:"bookIngested"`
}

// QdrantConfig holds the vector backend endpoint and collection settings.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
	VectorSize int           `yaml:"vectorSize"`
}

// EmbeddingConfig holds the embedding service endpoint and model name. The
// embedding service is a black box mapping text to a vector.
type EmbeddingConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LexicalConfig controls BM25 scoring constants and the on-disk index blob.
type LexicalConfig struct {
	K1        float64 `yaml:"k1"`
	B         float64 `yaml:"b"`
	IndexPath string  `yaml:"indexPath"`
}

// FusionWeights is one lexical/vector weight pair of the adaptive table.
type FusionWeights struct {
	Lexical float64 `yaml:"lexical"`
	Vector  float64 `yaml:"vector"`
}

// FusionConfig selects the fusion strategy and its constants. The weight
// table is keyed by query category; misclassification shifts weights but
// never fails a query.
type FusionConfig struct {
	Strategy            string        `yaml:"strategy"`
	RRFConstant         int           `yaml:"rrfConstant"`
	CandidateMultiplier int           `yaml:"candidateMultiplier"`
	Keyword             FusionWeights `yaml:"keyword"`
	Conceptual          FusionWeights `yaml:"conceptual"`
	Mixed               FusionWeights `yaml:"mixed"`
}

// SearchConfig controls query result limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxResults   int `yaml:"maxResults"`
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

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the retrieval engine cannot run with.
func (c *Config) Validate() error {
	if c.Fusion.Strategy != StrategyRRF && c.Fusion.Strategy != StrategyWeighted {
		return fmt.Errorf("invalid fusion strategy %q (want %q or %q)",
			c.Fusion.Strategy, StrategyRRF, StrategyWeighted)
	}
	if c.Lexical.K1 <= 0 {
		return fmt.Errorf("lexical k1 must be positive, got %v", c.Lexical.K1)
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		return fmt.Errorf("lexical b must be in [0,1], got %v", c.Lexical.B)
	}
	if c.Fusion.RRFConstant < 1 {
		return fmt.Errorf("fusion rrfConstant must be >= 1, got %d", c.Fusion.RRFConstant)
	}
	if c.Fusion.CandidateMultiplier < 1 {
		return fmt.Errorf("fusion candidateMultiplier must be >= 1, got %d", c.Fusion.CandidateMultiplier)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development. The fusion weights follow the tuned values from the evaluation
// runs: keyword-heavy queries lean lexical, conceptual queries lean vector.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "booksdb",
			User:            "bookuser",
			Password:        "bookpass",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bookquest-group",
			Topics: KafkaTopics{
				BookIngested: "book-ingested",
			},
		},
		Qdrant: QdrantConfig{
			URL:        "http://localhost:6333",
			Collection: "book_chunks",
			Timeout:    10 * time.Second,
			VectorSize: 384,
		},
		Embedding: EmbeddingConfig{
			URL:     "http://localhost:11434",
			Model:   "bge-small-en",
			Timeout: 60 * time.Second,
		},
		Lexical: LexicalConfig{
			K1:        1.5,
			B:         0.75,
			IndexPath: "data/lexical.bqix",
		},
		Fusion: FusionConfig{
			Strategy:            StrategyWeighted,
			RRFConstant:         60,
			CandidateMultiplier: 3,
			Keyword:             FusionWeights{Lexical: 0.7, Vector: 0.3},
			Conceptual:          FusionWeights{Lexical: 0.3, Vector: 0.7},
			Mixed:               FusionWeights{Lexical: 0.5, Vector: 0.5},
		},
		Search: SearchConfig{
			DefaultLimit: 7,
			MaxResults:   50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BQ_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BQ_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BQ_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BQ_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BQ_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BQ_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BQ_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BQ_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("BQ_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BQ_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BQ_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BQ_QDRANT_URL"); v != "" {
		cfg.Qdrant.URL = v
	}
	if v := os.Getenv("BQ_QDRANT_COLLECTION"); v != "" {
		cfg.Qdrant.Collection = v
	}
	if v := os.Getenv("BQ_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("BQ_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("BQ_LEXICAL_INDEX_PATH"); v != "" {
		cfg.Lexical.IndexPath = v
	}
	if v := os.Getenv("BQ_FUSION_STRATEGY"); v != "" {
		cfg.Fusion.Strategy = v
	}
	if v := os.Getenv("BQ_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BQ_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
