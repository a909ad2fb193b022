// Package config defines all configuration structures for the
// FoodSafety-MS-KB curation pipeline.  No I/O or parsing logic lives here,
// only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// PipelineConfig enumerates the file artifacts exchanged between phases.
// Every phase reads its input from and writes its output into WorkDir, so a
// batch can be restarted from any phase boundary.
type PipelineConfig struct {
	// InputCorpus is the cleaned detection corpus produced by the upstream
	// normalizer (read-only input to the identity phase).
	InputCorpus string `mapstructure:"input_corpus"`

	// WorkDir holds all intermediate and final artifacts: patched corpus,
	// compound catalog versions, candidate files, reports.
	WorkDir string `mapstructure:"work_dir"`

	// LLMCandidates is the candidate CSV produced by the external LLM
	// collaborator; consumed read-only by the fusion phase.  Optional: when
	// empty the fusion waterfall simply has no LLM tier input.
	LLMCandidates string `mapstructure:"llm_candidates"`

	// SchemaPath is the JSON schema definition consumed by the validator.
	SchemaPath string `mapstructure:"schema_path"`
}

// EnrichmentConfig holds external chemical database lookup parameters.
type EnrichmentConfig struct {
	// BaseURL of the PUG-REST style service.
	BaseURL string `mapstructure:"base_url"`

	// RateLimitDelay is the mandatory pause between successive requests.
	// Part of the adapter contract, enforced even when a request fails.
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`

	// RequestTimeout bounds each individual HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxRetries / RetryDelay control per-request retry before the entry is
	// recorded as "no candidate".
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// CacheTTL is how long lookup responses (including negative results)
	// stay in the redis cache.  Zero disables caching even when redis is on.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the durable
// catalog store.  The store is optional; file artifacts remain the source
// of truth for phase restarts.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds connection parameters for the enrichment lookup cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds producer parameters for curation events.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	Acks            string        `mapstructure:"acks"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	TopicPrefix     string        `mapstructure:"topic_prefix"`
}

// MinIOConfig holds object-storage parameters for run artifact archiving.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// OpenSearchConfig holds cluster parameters for indexing the fused catalog
// so the downstream viewer can search it.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
}

// MetricsConfig controls the prometheus registry exposition.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// Config is the root configuration structure for the pipeline.  Every
// infrastructure component and phase reads its settings from the relevant
// sub-struct; nothing reads global state.
type Config struct {
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; any error is a configuration
// error and the run must not start.
func (c *Config) Validate() error {
	if c.Pipeline.WorkDir == "" {
		return fmt.Errorf("config: pipeline.work_dir is required")
	}

	if c.Enrichment.BaseURL == "" {
		return fmt.Errorf("config: enrichment.base_url is required")
	}
	if c.Enrichment.RateLimitDelay < 0 {
		return fmt.Errorf("config: enrichment.rate_limit_delay must be >= 0, got %s", c.Enrichment.RateLimitDelay)
	}
	if c.Enrichment.MaxRetries < 1 {
		return fmt.Errorf("config: enrichment.max_retries must be >= 1, got %d", c.Enrichment.MaxRetries)
	}
	if c.Enrichment.RequestTimeout <= 0 {
		return fmt.Errorf("config: enrichment.request_timeout must be > 0, got %s", c.Enrichment.RequestTimeout)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required when database.enabled")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required when database.enabled")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required when database.enabled")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required when redis.enabled")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka.enabled")
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required when minio.enabled")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required when minio.enabled")
		}
	}

	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address when opensearch.enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
