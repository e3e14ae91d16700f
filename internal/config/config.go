// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newsclip/newscrawler/internal/news"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Site     SiteConfig     `mapstructure:"site"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Detail   DetailConfig   `mapstructure:"detail"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SiteConfig identifies the aggregator site and its category feeds.
type SiteConfig struct {
	Name       string          `mapstructure:"name"`
	BaseURL    string          `mapstructure:"base_url"`
	Categories []news.Category `mapstructure:"categories"`
}

// CrawlConfig governs the listing sweep.
type CrawlConfig struct {
	CategoryCap     int    `mapstructure:"category_cap"`
	CategoryDelayMs int    `mapstructure:"category_delay_ms"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	UserAgent       string `mapstructure:"user_agent"`
	FetchTimeoutMs  int    `mapstructure:"fetch_timeout_ms"`
}

// DetailConfig tunes detail fetching and the in-process cache.
type DetailConfig struct {
	Concurrency     int `mapstructure:"concurrency"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	ThinBodyRetries int `mapstructure:"thin_body_retries"`
	RetryBaseMs     int `mapstructure:"retry_base_ms"`
}

// BackfillConfig tunes the missing-detail sweep.
type BackfillConfig struct {
	Limit   int `mapstructure:"limit"`
	DelayMs int `mapstructure:"delay_ms"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSCRAWLER")
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
	v.SetDefault("site.name", "뉴스클립")
	v.SetDefault("crawl.category_cap", 25)
	v.SetDefault("crawl.category_delay_ms", 1000)
	v.SetDefault("crawl.interval_minutes", 30)
	v.SetDefault("crawl.user_agent", "newsclip-bot/1.0")
	v.SetDefault("crawl.fetch_timeout_ms", 10000)
	v.SetDefault("detail.concurrency", 4)
	v.SetDefault("detail.cache_ttl_seconds", 600)
	v.SetDefault("detail.thin_body_retries", 2)
	v.SetDefault("detail.retry_base_ms", 500)
	v.SetDefault("backfill.limit", 20)
	v.SetDefault("backfill.delay_ms", 200)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if len(c.Site.Categories) == 0 {
		return fmt.Errorf("site.categories must not be empty")
	}
	for _, cat := range c.Site.Categories {
		if cat.Name == "" || cat.URL == "" {
			return fmt.Errorf("every category needs a name and url")
		}
	}
	if c.Crawl.CategoryDelayMs <= 0 {
		return fmt.Errorf("crawl.category_delay_ms must be > 0")
	}
	if c.Crawl.FetchTimeoutMs <= 0 {
		return fmt.Errorf("crawl.fetch_timeout_ms must be > 0")
	}
	if c.Detail.Concurrency <= 0 {
		return fmt.Errorf("detail.concurrency must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	return nil
}

// CategoryDelay returns the mandatory inter-category pause.
func (c Config) CategoryDelay() time.Duration {
	return time.Duration(c.Crawl.CategoryDelayMs) * time.Millisecond
}

// FetchTimeout returns the per-request fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.FetchTimeoutMs) * time.Millisecond
}

// CacheTTL returns the detail cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Detail.CacheTTLSeconds) * time.Second
}

// RetryBaseDelay returns the base backoff for thin-body refetches.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Detail.RetryBaseMs) * time.Millisecond
}

// BackfillDelay returns the pause between backfill items.
func (c Config) BackfillDelay() time.Duration {
	return time.Duration(c.Backfill.DelayMs) * time.Millisecond
}

// CrawlInterval returns the period of the run scheduler.
func (c Config) CrawlInterval() time.Duration {
	return time.Duration(c.Crawl.IntervalMinutes) * time.Minute
}
