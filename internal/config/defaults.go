package config

import "time"

// Default value constants.
const (
	DefaultWorkDir = "./mskb-work"

	DefaultEnrichmentBaseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	// DefaultRateLimitDelay keeps the adapter under PubChem's five
	// requests per second allowance.
	DefaultRateLimitDelay = 300 * time.Millisecond
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultCacheTTL       = 7 * 24 * time.Hour

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "mskb"
	DefaultDBMaxConns = 10

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "mskb:"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaTopicPrefix = "mskb"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "mskb-artifacts"

	DefaultOpenSearchAddress     = "http://localhost:9200"
	DefaultOpenSearchIndexPrefix = "mskb"
	DefaultOpenSearchBulkBatch   = 500

	DefaultMetricsAddr = ":9090"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the pipeline
// default.  Fields already set by the caller are left unchanged so explicit
// configuration always wins.  Must run after unmarshalling and before
// Validate() so optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Pipeline.WorkDir == "" {
		cfg.Pipeline.WorkDir = DefaultWorkDir
	}

	if cfg.Enrichment.BaseURL == "" {
		cfg.Enrichment.BaseURL = DefaultEnrichmentBaseURL
	}
	if cfg.Enrichment.RateLimitDelay == 0 {
		cfg.Enrichment.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.Enrichment.RequestTimeout == 0 {
		cfg.Enrichment.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Enrichment.MaxRetries == 0 {
		cfg.Enrichment.MaxRetries = DefaultMaxRetries
	}
	if cfg.Enrichment.RetryDelay == 0 {
		cfg.Enrichment.RetryDelay = DefaultRetryDelay
	}
	if cfg.Enrichment.CacheTTL == 0 {
		cfg.Enrichment.CacheTTL = DefaultCacheTTL
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Acks == "" {
		cfg.Kafka.Acks = "all"
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = time.Second
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultOpenSearchIndexPrefix
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = DefaultOpenSearchBulkBatch
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
