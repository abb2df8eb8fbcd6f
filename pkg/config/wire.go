package config

import (
	"context"
	"fmt"

	"github.com/Sternrassler/go-fetch/pkg/batch"
	"github.com/Sternrassler/go-fetch/pkg/cache"
	"github.com/Sternrassler/go-fetch/pkg/client"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewCache builds the configured response cache. The returned close
// function releases the backend connection, if any.
func (c *Config) NewCache(ctx context.Context, logger zerolog.Logger) (*cache.ResponseCache, func() error, error) {
	if c.Cache.Backend != BackendRedis {
		rc := cache.NewResponseCache(cache.NewMemoryStore(), c.Cache.DefaultFreshness, logger)
		return rc, func() error { return nil }, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: c.Cache.RedisAddr,
		DB:   c.Cache.RedisDB,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", c.Cache.RedisAddr, err)
	}

	store := cache.NewRedisStore(redisClient, c.Cache.Namespace)
	logger.Info().
		Str("component", "config").
		Str("redis_addr", c.Cache.RedisAddr).
		Msg("Using Redis response cache")

	return cache.NewResponseCache(store, c.Cache.DefaultFreshness, logger), redisClient.Close, nil
}

// ClientConfig maps the settings onto a client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.MaxRedirects = c.MaxRedirects
	cfg.DefaultFreshness = c.Cache.DefaultFreshness
	cfg.LivenessTimeout = c.Pool.LivenessTimeout
	cfg.DialTimeout = c.Pool.DialTimeout
	return cfg
}

// NewClient builds a fetch client with the configured cache. logger is the
// base logger; each layer adds its own component field. The returned close
// function closes the client and the cache backend.
func (c *Config) NewClient(ctx context.Context, logger zerolog.Logger) (*client.Client, func() error, error) {
	rc, closeCache, err := c.NewCache(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	cfg := c.ClientConfig()
	cfg.Cache = rc
	cfg.Logger = &logger

	fetchClient, err := client.New(cfg)
	if err != nil {
		closeCache()
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	closeAll := func() error {
		clientErr := fetchClient.Close()
		if err := closeCache(); err != nil {
			return err
		}
		return clientErr
	}
	return fetchClient, closeAll, nil
}

// BatchFetcherConfig maps the batch settings.
func (c *Config) BatchFetcherConfig() batch.Config {
	cfg := batch.DefaultConfig()
	if c.Batch.Workers > 0 {
		cfg.MaxConcurrency = c.Batch.Workers
	}
	if c.Batch.Timeout > 0 {
		cfg.Timeout = c.Batch.Timeout
	}
	return cfg
}
