// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Enhance   EnhanceConfig   `mapstructure:"enhance"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Events    EventsConfig    `mapstructure:"events"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DiscoveryConfig governs URL discovery.
type DiscoveryConfig struct {
	MaxURLs             int    `mapstructure:"max_urls"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
	EnablePatterns      bool   `mapstructure:"enable_patterns"`
	ValidateConcurrency int    `mapstructure:"validate_concurrency"`
	BlogSectionLimit    int    `mapstructure:"blog_section_limit"`
}

// FetchConfig governs the rapid-scrape batch executor.
type FetchConfig struct {
	BatchSize          int `mapstructure:"batch_size"`
	BatchDelayMs       int `mapstructure:"batch_delay_ms"`
	PageTimeoutSeconds int `mapstructure:"page_timeout_seconds"`
}

// HeadlessConfig configures the headless rendering tier.
type HeadlessConfig struct {
	MaxParallel       int `mapstructure:"max_parallel"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs     int `mapstructure:"settle_delay_ms"`
}

// QualityConfig tunes content quality scoring.
type QualityConfig struct {
	MinContentLength int     `mapstructure:"min_content_length"`
	Threshold        float64 `mapstructure:"threshold"`
}

// EnhanceConfig governs the escalation re-fetch pass.
type EnhanceConfig struct {
	BatchSize          int `mapstructure:"batch_size"`
	BatchDelayMs       int `mapstructure:"batch_delay_ms"`
	PageTimeoutSeconds int `mapstructure:"page_timeout_seconds"`
}

// AggregateConfig caps merged brand assets.
type AggregateConfig struct {
	MaxColors int `mapstructure:"max_colors"`
	MaxFonts  int `mapstructure:"max_fonts"`
	MaxImages int `mapstructure:"max_images"`
}

// EventsConfig tunes the progress event bus.
type EventsConfig struct {
	DedupTTLSeconds      int `mapstructure:"dedup_ttl_seconds"`
	NotifyTTLSeconds     int `mapstructure:"notify_ttl_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	BufferSize           int `mapstructure:"buffer_size"`
}

// PipelineConfig bounds a whole extraction run.
type PipelineConfig struct {
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds"`
}

// DBConfig controls the optional Postgres session store. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// StorageConfig selects where raw page snapshots go.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // none, memory, local, gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for terminal-event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("discovery.max_urls", 200)
	v.SetDefault("discovery.timeout_seconds", 10)
	v.SetDefault("discovery.user_agent", "siteharvest-bot/0.1")
	v.SetDefault("discovery.enable_patterns", false)
	v.SetDefault("discovery.validate_concurrency", 8)
	v.SetDefault("discovery.blog_section_limit", 3)
	v.SetDefault("fetch.batch_size", 5)
	v.SetDefault("fetch.batch_delay_ms", 500)
	v.SetDefault("fetch.page_timeout_seconds", 30)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_delay_ms", 500)
	v.SetDefault("quality.min_content_length", 200)
	v.SetDefault("quality.threshold", 0.5)
	v.SetDefault("enhance.batch_size", 2)
	v.SetDefault("enhance.batch_delay_ms", 500)
	v.SetDefault("enhance.page_timeout_seconds", 60)
	v.SetDefault("aggregate.max_colors", 8)
	v.SetDefault("aggregate.max_fonts", 5)
	v.SetDefault("aggregate.max_images", 50)
	v.SetDefault("events.dedup_ttl_seconds", 10)
	v.SetDefault("events.notify_ttl_seconds", 2)
	v.SetDefault("events.sweep_interval_seconds", 60)
	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("pipeline.run_timeout_seconds", 600)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "snapshots")
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Discovery.MaxURLs <= 0 {
		return fmt.Errorf("discovery.max_urls must be positive, got %d", c.Discovery.MaxURLs)
	}
	if c.Fetch.BatchSize <= 0 {
		return fmt.Errorf("fetch.batch_size must be positive, got %d", c.Fetch.BatchSize)
	}
	if c.Enhance.BatchSize <= 0 {
		return fmt.Errorf("enhance.batch_size must be positive, got %d", c.Enhance.BatchSize)
	}
	if c.Quality.Threshold < 0 || c.Quality.Threshold > 1 {
		return fmt.Errorf("quality.threshold must be in [0,1], got %v", c.Quality.Threshold)
	}
	switch c.Storage.Backend {
	case "none", "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of none, memory, local, gcs; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// RunTimeout converts the pipeline budget to a duration.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}
