package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	"arbiter/internal/judge/comparator"
	"arbiter/internal/judge/coordinator"
	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/model"
	"arbiter/internal/judge/queue"
	"arbiter/internal/judge/sandbox"
	"arbiter/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultLeaseTTL        = 5 * time.Minute
	defaultStatusTTL       = 30 * time.Minute
	defaultSandboxSlots    = 8
	defaultReclaimInterval = time.Minute
	defaultReclaimAge      = 10 * time.Minute
	defaultReclaimBatch    = 50
	defaultIntakeTopic     = "judge.tasks"
	defaultTerminalTopic   = "judge.results"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	IntakeTopic   string        `yaml:"intakeTopic"`
	TerminalTopic string        `yaml:"terminalTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

// ContentConfig holds testcase content store settings.
type ContentConfig struct {
	Bucket     string `yaml:"bucket"`
	MaxEntries int    `yaml:"maxEntries"`
}

// JudgingConfig holds per-submission judging settings.
type JudgingConfig struct {
	Coordinator  coordinator.Config `yaml:"coordinator"`
	LeaseTTL     time.Duration      `yaml:"leaseTTL"`
	StatusTTL    time.Duration      `yaml:"statusTTL"`
	SandboxSlots int                `yaml:"sandboxSlots"`
}

// ExecutorConfig holds output handling and comparison settings.
type ExecutorConfig struct {
	MaxStdoutBytes int64             `yaml:"maxStdoutBytes"`
	Policy         comparator.Policy `yaml:"policy"`
}

// ReclaimConfig controls requeueing of submissions left behind by a crash.
type ReclaimConfig struct {
	Interval  time.Duration `yaml:"interval"`
	OlderThan time.Duration `yaml:"olderThan"`
	BatchSize int           `yaml:"batchSize"`
}

// AppConfig holds the judge daemon config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Content  ContentConfig       `yaml:"content"`
	Limiter  limiter.Config      `yaml:"limiter"`
	Sandbox  sandbox.Config      `yaml:"sandbox"`
	Executor ExecutorConfig      `yaml:"executor"`
	Judging  JudgingConfig       `yaml:"judging"`
	Queue    queue.Config        `yaml:"queue"`
	Reclaim  ReclaimConfig       `yaml:"reclaim"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.IntakeTopic == "" {
		cfg.Kafka.IntakeTopic = defaultIntakeTopic
	}
	if cfg.Kafka.TerminalTopic == "" {
		cfg.Kafka.TerminalTopic = defaultTerminalTopic
	}
	if cfg.Content.Bucket == "" {
		cfg.Content.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Judging.LeaseTTL == 0 {
		cfg.Judging.LeaseTTL = defaultLeaseTTL
	}
	if cfg.Judging.StatusTTL == 0 {
		cfg.Judging.StatusTTL = defaultStatusTTL
	}
	if cfg.Judging.SandboxSlots <= 0 {
		cfg.Judging.SandboxSlots = defaultSandboxSlots
	}
	if cfg.Reclaim.Interval == 0 {
		cfg.Reclaim.Interval = defaultReclaimInterval
	}
	if cfg.Reclaim.OlderThan == 0 {
		cfg.Reclaim.OlderThan = defaultReclaimAge
	}
	if cfg.Reclaim.BatchSize <= 0 {
		cfg.Reclaim.BatchSize = defaultReclaimBatch
	}
	sandboxDefaults := sandbox.DefaultConfig()
	if cfg.Sandbox.WorkRoot == "" {
		cfg.Sandbox.WorkRoot = sandboxDefaults.WorkRoot
	}
	if cfg.Sandbox.CompileLimits == (model.ResourceLimit{}) {
		cfg.Sandbox.CompileLimits = sandboxDefaults.CompileLimits
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
