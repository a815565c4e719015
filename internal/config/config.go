// Package config loads and validates the corpus configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for corpus.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Broker      BrokerConfig      `yaml:"broker"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Guards      GuardsConfig      `yaml:"guards"`
	Chat        ChatConfig        `yaml:"chat"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`

	// MaxUploadBytes caps multipart PDF uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`

	// Folder prefixes every object key ("<folder>/<uuid>.pdf").
	Folder string `yaml:"folder"`

	UseTLS bool `yaml:"use_tls"`

	// GetTimeout bounds a single object download.
	GetTimeout time.Duration `yaml:"get_timeout"`
}

type BrokerConfig struct {
	URL          string        `yaml:"url"`
	Exchange     string        `yaml:"exchange"`
	ExchangeType string        `yaml:"exchange_type"`
	Queue        string        `yaml:"queue"`
	RoutingKey   string        `yaml:"routing_key"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	// APIKey falls back to llm.api_key when empty.
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ChunkingConfig struct {
	ChunkSize              int `yaml:"chunk_size"`
	ChunkOverlap           int `yaml:"chunk_overlap"`
	MinStandaloneChunkSize int `yaml:"min_standalone_chunk_size"`
}

type GuardsConfig struct {
	// JailbreakThreshold is the input-guard score above which a prompt is
	// flagged, in [0,1].
	JailbreakThreshold float64 `yaml:"jailbreak_threshold"`

	// Moderation enables the provider moderation endpoint on top of the
	// pattern detector.
	Moderation bool `yaml:"moderation"`

	// PIIEntities selects which recognizers the output guard runs.
	PIIEntities []string `yaml:"pii_entities"`
}

type ChatConfig struct {
	// MessageLimit bounds history reads per session.
	MessageLimit int `yaml:"message_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address; empty disables tracing.
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file. Environment variables in the
// file are expanded before parsing, so secrets stay out of the YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultPIIEntities is the output-guard entity set when none is configured.
var DefaultPIIEntities = []string{
	"EMAIL", "PHONE", "CREDIT_CARD", "SSN", "PASSPORT", "DRIVER_LICENSE", "IBAN", "IP",
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.ObjectStore.Folder == "" {
		cfg.ObjectStore.Folder = "documents"
	}
	if cfg.ObjectStore.GetTimeout == 0 {
		cfg.ObjectStore.GetTimeout = 30 * time.Second
	}

	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "bucketevents"
	}
	if cfg.Broker.ExchangeType == "" {
		cfg.Broker.ExchangeType = "topic"
	}
	if cfg.Broker.Queue == "" {
		cfg.Broker.Queue = "corpus.pdf-events"
	}
	if cfg.Broker.RoutingKey == "" {
		cfg.Broker.RoutingKey = "documents.created"
	}
	if cfg.Broker.DialTimeout == 0 {
		cfg.Broker.DialTimeout = 10 * time.Second
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if cfg.Chunking.MinStandaloneChunkSize == 0 {
		cfg.Chunking.MinStandaloneChunkSize = 150
	}

	if cfg.Guards.JailbreakThreshold == 0 {
		cfg.Guards.JailbreakThreshold = 0.9
	}
	if len(cfg.Guards.PIIEntities) == 0 {
		cfg.Guards.PIIEntities = append([]string(nil), DefaultPIIEntities...)
	}

	if cfg.Chat.MessageLimit == 0 {
		cfg.Chat.MessageLimit = 50
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate checks required fields and value ranges. It runs after defaults,
// so only genuinely operator-supplied values can fail it.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if c.ObjectStore.Endpoint == "" {
		return fmt.Errorf("config: object_store.endpoint is required")
	}
	if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
		return fmt.Errorf("config: object_store credentials are required")
	}
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("config: object_store.bucket is required")
	}
	if c.Broker.URL == "" {
		return fmt.Errorf("config: broker.url is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.api_key is required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("config: embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Guards.JailbreakThreshold < 0 || c.Guards.JailbreakThreshold > 1 {
		return fmt.Errorf("config: guards.jailbreak_threshold must be in [0,1], got %g", c.Guards.JailbreakThreshold)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("config: chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	return nil
}
