// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Ranking, Corpus, Models, Postgres, Kafka, Redis, etc.).
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
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Models    ModelsConfig    `yaml:"models"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is the number of
// match requests per minute allowed per client IP; 0 disables limiting.
// TrustedProxies lists the CIDRs or IPs whose X-Forwarded-For header is
// believed when keying the limiter.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RateLimit       int           `yaml:"rateLimit"`
	TrustedProxies  []string      `yaml:"trustedProxies"`
}

// RPCConfig holds the JSON-over-TCP RPC listener settings. A zero port
// disables the listener.
type RPCConfig struct {
	Port int `yaml:"port"`
}

// RankingConfig controls result size, previews and the optional per-request
// ranking deadline.
type RankingConfig struct {
	TopK         int           `yaml:"topK"`
	PreviewChars int           `yaml:"previewChars"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CorpusConfig selects the job-posting source and the sampling policy.
type CorpusConfig struct {
	Source          string `yaml:"source"`
	CSVPath         string `yaml:"csvPath"`
	SQLDriver       string `yaml:"sqlDriver"`
	SQLiteDSN       string `yaml:"sqliteDsn"`
	SampleSize      int    `yaml:"sampleSize"`
	Seed            int64  `yaml:"seed"`
	RefreshSchedule string `yaml:"refreshSchedule"`
}

// ModelsConfig groups the pretrained model endpoints.
type ModelsConfig struct {
	Embedding EmbeddingConfig  `yaml:"embedding"`
	Entities  EntitiesConfig   `yaml:"entities"`
	Cache     ModelCacheConfig `yaml:"cache"`
}

// EmbeddingConfig selects the sentence-embedding backend.
type EmbeddingConfig struct {
	Provider string        `yaml:"provider"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EntitiesConfig configures the token-classification endpoint and the
// allow-list of entity groups kept for overlap scoring.
type EntitiesConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"apiKey"`
	Timeout       time.Duration `yaml:"timeout"`
	AllowedGroups []string      `yaml:"allowedGroups"`
}

// ModelCacheConfig controls the Redis cache shared by model clients.
type ModelCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RankingEvents string `yaml:"rankingEvents"`
	CorpusUpdates string `yaml:"corpusUpdates"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// AnalyticsConfig controls rank-event aggregation. Snapshots are written to
// PostgreSQL on SnapshotSchedule when Persist is set.
type AnalyticsConfig struct {
	Persist          bool          `yaml:"persist"`
	SnapshotSchedule string        `yaml:"snapshotSchedule"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	MaxSamples       int           `yaml:"maxSamples"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
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

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: server.rateLimit must be non-negative")
	}
	if c.Ranking.TopK < 1 {
		return fmt.Errorf("config: ranking.topK must be at least 1, got %d", c.Ranking.TopK)
	}
	if c.Ranking.PreviewChars < 0 {
		return fmt.Errorf("config: ranking.previewChars must be non-negative")
	}
	switch c.Corpus.Source {
	case "csv":
		if c.Corpus.CSVPath == "" {
			return fmt.Errorf("config: corpus.csvPath is required for csv source")
		}
	case "sql":
		if c.Corpus.SQLDriver != "postgres" && c.Corpus.SQLDriver != "sqlite" {
			return fmt.Errorf("config: corpus.sqlDriver must be postgres or sqlite, got %q", c.Corpus.SQLDriver)
		}
	default:
		return fmt.Errorf("config: unknown corpus.source %q", c.Corpus.Source)
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Ranking: RankingConfig{
			TopK:         5,
			PreviewChars: 150,
		},
		Corpus: CorpusConfig{
			Source:     "csv",
			CSVPath:    "../dataset_preprocessing/merged_job_data.csv",
			SQLDriver:  "postgres",
			SampleSize: 2000,
			Seed:       42,
		},
		Models: ModelsConfig{
			Embedding: EmbeddingConfig{
				Provider: "tei",
				Endpoint: "http://localhost:8090",
				Model:    "sentence-transformers/all-MiniLM-L6-v2",
				Timeout:  60 * time.Second,
			},
			Entities: EntitiesConfig{
				Endpoint:      "http://localhost:8091",
				Model:         "Jean-Baptiste/roberta-large-ner-english",
				Timeout:       60 * time.Second,
				AllowedGroups: []string{"ORG", "JOB", "MISC", "SKILL", "TECH", "TOOL"},
			},
			Cache: ModelCacheConfig{
				Enabled: false,
				TTL:     24 * time.Hour,
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "jobmatch",
			User:            "jobmatch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "jobmatch-group",
			Topics: KafkaTopics{
				RankingEvents: "ranking-events",
				CorpusUpdates: "corpus-updates",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Analytics: AnalyticsConfig{
			SnapshotSchedule: "@every 5m",
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			MaxSamples:       10000,
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

// applyEnvOverrides reads MR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MR_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MR_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("MR_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("MR_RPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.RPC.Port = port
		}
	}
	if v := os.Getenv("MR_RANKING_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.TopK = k
		}
	}
	if v := os.Getenv("MR_RANKING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ranking.Timeout = d
		}
	}
	if v := os.Getenv("MR_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("MR_CORPUS_CSV_PATH"); v != "" {
		cfg.Corpus.CSVPath = v
	}
	if v := os.Getenv("MR_CORPUS_SQL_DRIVER"); v != "" {
		cfg.Corpus.SQLDriver = v
	}
	if v := os.Getenv("MR_CORPUS_SQLITE_DSN"); v != "" {
		cfg.Corpus.SQLiteDSN = v
	}
	if v := os.Getenv("MR_CORPUS_SAMPLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.SampleSize = n
		}
	}
	if v := os.Getenv("MR_CORPUS_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Corpus.Seed = seed
		}
	}
	if v := os.Getenv("MR_EMBEDDING_PROVIDER"); v != "" {
		cfg.Models.Embedding.Provider = v
	}
	if v := os.Getenv("MR_EMBEDDING_ENDPOINT"); v != "" {
		cfg.Models.Embedding.Endpoint = v
	}
	if v := os.Getenv("MR_EMBEDDING_MODEL"); v != "" {
		cfg.Models.Embedding.Model = v
	}
	if v := os.Getenv("MR_EMBEDDING_API_KEY"); v != "" {
		cfg.Models.Embedding.APIKey = v
	}
	if v := os.Getenv("MR_ENTITIES_ENDPOINT"); v != "" {
		cfg.Models.Entities.Endpoint = v
	}
	if v := os.Getenv("MR_ENTITIES_API_KEY"); v != "" {
		cfg.Models.Entities.APIKey = v
	}
	if v := os.Getenv("MR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("MR_ANALYTICS_PERSIST"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Persist = on
		}
	}
	if v := os.Getenv("MR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
