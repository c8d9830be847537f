package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Crawler     CrawlerConfig     `yaml:"crawler" mapstructure:"crawler"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Wikidata    WikidataConfig    `yaml:"wikidata" mapstructure:"wikidata"`
	Notion      NotionConfig      `yaml:"notion" mapstructure:"notion"`
	ManualStore ManualStoreConfig `yaml:"manual_store" mapstructure:"manual_store"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Automation  AutomationConfig  `yaml:"automation" mapstructure:"automation"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CrawlerConfig holds crawler service settings.
type CrawlerConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	MaxPages      int     `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDepth      int     `yaml:"max_depth" mapstructure:"max_depth"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds Anthropic API settings. ScoringModels is the set of
// models the fingerprint stage queries, one observation per model.
type AnthropicConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	ScoringModels []string `yaml:"scoring_models" mapstructure:"scoring_models"`
	MaxTokens     int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec    float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// SearchConfig holds web search provider settings for notability references.
type SearchConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// WikidataConfig holds knowledge-graph publisher settings.
type WikidataConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	Production  bool   `yaml:"production" mapstructure:"production"`
	MappingPath string `yaml:"mapping_path" mapstructure:"mapping_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotionConfig holds the optional review-board settings.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// ManualStoreConfig configures the manual-publish fallback directory.
type ManualStoreConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PipelineConfig configures scoring thresholds and retry policy.
type PipelineConfig struct {
	PublishThreshold float64 `yaml:"publish_threshold" mapstructure:"publish_threshold"`
	ReviewThreshold  float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	MinNotableRefs   int     `yaml:"min_notable_refs" mapstructure:"min_notable_refs"`
	// MaxRetries caps provider call attempts per stage, counting the first.
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffSecs int `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
	StageTimeoutSecs int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
}

// AutomationConfig configures the periodic scheduler driver.
type AutomationConfig struct {
	CronSpec      string `yaml:"cron_spec" mapstructure:"cron_spec"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "visibility.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.max_pages", 25)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.timeout_secs", 120)
	v.SetDefault("crawler.cache_ttl_hours", 24)
	v.SetDefault("crawler.rate_per_sec", 2)
	v.SetDefault("anthropic.scoring_models", []string{
		"claude-haiku-4-5-20251001",
		"claude-sonnet-4-5-20250929",
	})
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.rate_per_sec", 2)
	v.SetDefault("search.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("wikidata.production", false)
	v.SetDefault("wikidata.timeout_secs", 30)
	v.SetDefault("manual_store.dir", "manual-entities")
	v.SetDefault("pipeline.publish_threshold", 0.7)
	v.SetDefault("pipeline.review_threshold", 0.4)
	v.SetDefault("pipeline.min_notable_refs", 2)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_backoff_secs", 2)
	v.SetDefault("pipeline.stage_timeout_secs", 180)
	v.SetDefault("automation.cron_spec", "0 * * * *")
	v.SetDefault("automation.max_concurrent", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
