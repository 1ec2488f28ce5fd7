// Package config loads gateway settings from the environment and an optional
// YAML file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/transcript-gateway/pkg/logging"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
	"github.com/Sternrassler/transcript-gateway/pkg/upstream"
)

// Config is read once at startup. Environment variables use the upper-case
// key names (PORT, REQUEST_TIMEOUT, ...).
type Config struct {
	Port int `mapstructure:"port"`

	// RequestTimeout is how long /transcript waits for the upstream.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// UpstreamTimeout bounds a fetch that keeps running after the caller
	// gave up.
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`

	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax      int           `mapstructure:"rate_limit_max"`
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`

	ProxyEnabled bool   `mapstructure:"proxy_enabled"`
	ProxyURL     string `mapstructure:"proxy_url"`

	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval"`
	CacheMaxEntries    int           `mapstructure:"cache_max_entries"`

	// RedisURL switches cache and rate limiter to Redis when set.
	RedisURL string `mapstructure:"redis_url"`

	UpstreamMaxRPS   float64 `mapstructure:"upstream_max_rps"`
	UpstreamBaseURL  string  `mapstructure:"upstream_base_url"`
	UpstreamLanguage string  `mapstructure:"upstream_language"`
	UserAgent        string  `mapstructure:"user_agent"`

	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// Load builds a Config from defaults, the optional file at path, and the
// environment, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
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
	v.SetDefault("port", 3000)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("upstream_timeout", 60*time.Second)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("rate_limit_max", 30)
	v.SetDefault("trust_forwarded_for", false)
	v.SetDefault("proxy_enabled", false)
	v.SetDefault("proxy_url", "")
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("cache_sweep_interval", 10*time.Minute)
	v.SetDefault("cache_max_entries", 0)
	v.SetDefault("redis_url", "")
	v.SetDefault("upstream_max_rps", 0)
	v.SetDefault("upstream_base_url", transcript.DefaultBaseURL)
	v.SetDefault("upstream_language", "en")
	v.SetDefault("user_agent", transcript.DefaultUserAgent)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream_timeout must be > 0")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be > 0")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("rate_limit_max must be > 0")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be > 0")
	}
	if c.CacheSweepInterval <= 0 {
		return fmt.Errorf("cache_sweep_interval must be > 0")
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must be >= 0")
	}
	if c.UpstreamMaxRPS < 0 {
		return fmt.Errorf("upstream_max_rps must be >= 0")
	}
	if u, err := url.Parse(c.UpstreamBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream_base_url must be an absolute URL")
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("redis_url must use the redis:// or rediss:// scheme")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := c.Proxy(); err != nil {
		return fmt.Errorf("proxy_url: %w", err)
	}
	return nil
}

// Proxy parses the outbound proxy settings.
func (c Config) Proxy() (upstream.ProxyConfig, error) {
	return upstream.ParseProxy(c.ProxyEnabled, c.ProxyURL)
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.LogLevel)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.LogPretty
	return cfg
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
