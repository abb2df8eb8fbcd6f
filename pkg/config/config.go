// Package config loads fetch engine settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/cache"
	"github.com/Sternrassler/go-fetch/pkg/client"
	"github.com/Sternrassler/go-fetch/pkg/logging"
	"github.com/Sternrassler/go-fetch/pkg/pool"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full configuration.
type Config struct {
	UserAgent    string      `yaml:"user_agent"`
	MaxRedirects int         `yaml:"max_redirects"`
	Cache        CacheConfig `yaml:"cache"`
	Pool         PoolConfig  `yaml:"pool"`
	Log          LogConfig   `yaml:"log"`
	Proxy        ProxyConfig `yaml:"proxy"`
	Batch        BatchConfig `yaml:"batch"`
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	DefaultFreshness time.Duration `yaml:"default_freshness"`
	Backend          string        `yaml:"backend"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisDB          int           `yaml:"redis_db"`

	// Namespace prefixes Redis keys. Empty picks a random one per process.
	Namespace string `yaml:"namespace"`
}

// PoolConfig tunes connection handling.
type PoolConfig struct {
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  logging.LogLevel `yaml:"level"`
	Pretty bool             `yaml:"pretty"`
}

// ProxyConfig configures cmd/fetch-proxy.
type ProxyConfig struct {
	Address      string        `yaml:"address"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// AllowLocal lets callers request file: and data: locators.
	AllowLocal bool `yaml:"allow_local"`
}

// BatchConfig configures parallel fetching.
type BatchConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UserAgent:    "go-fetch/0.1.0",
		MaxRedirects: client.DefaultMaxRedirects,
		Cache: CacheConfig{
			DefaultFreshness: cache.DefaultFreshness,
			Backend:          BackendMemory,
			RedisAddr:        "localhost:6379",
		},
		Pool: PoolConfig{
			LivenessTimeout: pool.DefaultLivenessTimeout,
			DialTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level: logging.LevelInfo,
		},
		Proxy: ProxyConfig{
			Address:      ":8080",
			FetchTimeout: 30 * time.Second,
		},
		Batch: BatchConfig{
			Workers: 4,
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads path on top of the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment.
func (c *Config) applyEnv() error {
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.Cache.Backend = getEnv("FETCH_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getEnv("REDIS_URL", c.Cache.RedisAddr)
	c.Log.Level = logging.LogLevel(getEnv("LOG_LEVEL", string(c.Log.Level)))

	if port := os.Getenv("PORT"); port != "" {
		c.Proxy.Address = ":" + port
	}

	if raw := os.Getenv("FETCH_MAX_REDIRECTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("FETCH_MAX_REDIRECTS: %w", err)
		}
		c.MaxRedirects = n
	}

	if raw := os.Getenv("FETCH_DEFAULT_FRESHNESS"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("FETCH_DEFAULT_FRESHNESS: %w", err)
		}
		c.Cache.DefaultFreshness = d
	}

	return nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []error

	if c.UserAgent == "" {
		errs = append(errs, errors.New("user_agent is required"))
	}
	if c.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("max_redirects must be >= 0 (got %d)", c.MaxRedirects))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q (got %q)", BackendMemory, BackendRedis, c.Cache.Backend))
	}

	if c.Cache.DefaultFreshness < 0 {
		errs = append(errs, fmt.Errorf("cache.default_freshness must be >= 0 (got %s)", c.Cache.DefaultFreshness))
	}
	if c.Pool.LivenessTimeout < 0 || c.Pool.DialTimeout < 0 {
		errs = append(errs, errors.New("pool timeouts must be >= 0"))
	}
	if !c.Log.Level.Valid() {
		errs = append(errs, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	if c.Proxy.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("proxy.fetch_timeout must be > 0 (got %s)", c.Proxy.FetchTimeout))
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, fmt.Errorf("batch.workers must be >= 0 (got %d)", c.Batch.Workers))
	}

	return errors.Join(errs...)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Pretty = c.Log.Pretty
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
