// Package client provides the fetch driver: it parses locators, dispatches
// on scheme, consults the response cache and follows redirects up to a
// bound.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/cache"
	"github.com/Sternrassler/go-fetch/pkg/local"
	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/Sternrassler/go-fetch/pkg/pool"
	"github.com/Sternrassler/go-fetch/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpguts"
)

// Prometheus metrics for fetch operations.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_fetches_total",
		Help: "Total fetches by final scheme and outcome",
	}, []string{"scheme", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_fetch_duration_seconds",
		Help:    "Fetch duration in seconds, redirects included, by outcome",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	redirectsFollowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_redirects_followed_total",
		Help: "Total redirect hops followed",
	})

	redirectLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_redirect_limit_exceeded_total",
		Help: "Total fetches aborted for exceeding the redirect limit",
	})
)

// DefaultMaxRedirects is the number of redirect hops a fetch may follow.
const DefaultMaxRedirects = 10

// LocalReader reads file: and data: locators.
type LocalReader interface {
	Read(ctx context.Context, loc locator.Locator) (*local.Resource, error)
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// MaxRedirects bounds the redirect hops of one fetch
	MaxRedirects int

	// DefaultFreshness applies to cacheable responses without max-age
	DefaultFreshness time.Duration

	// LivenessTimeout bounds the liveness check of idle connections
	LivenessTimeout time.Duration

	// DialTimeout bounds TCP connect plus TLS handshake
	DialTimeout time.Duration

	// Optional collaborators. Nil selects a private default built from
	// the settings above.
	Pool   *pool.Pool
	Cache  *cache.ResponseCache
	Dialer pool.Dialer
	Local  LocalReader
	Logger *zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:        userAgent,
		MaxRedirects:     DefaultMaxRedirects,
		DefaultFreshness: cache.DefaultFreshness,
		LivenessTimeout:  pool.DefaultLivenessTimeout,
		DialTimeout:      30 * time.Second,
	}
}

// Content is the final result of a fetch.
type Content struct {
	// Body is the response body, or the rendered local resource
	Body string

	// ViewSource is carried from the locator the fetch started with
	ViewSource bool

	// Locator is where the body was finally found
	Locator locator.Locator

	// Status is the HTTP status code; zero for local resources
	Status int

	// Header holds the response headers, names case-folded; nil for local
	// resources
	Header map[string]string

	// Redirects is the number of redirect hops followed
	Redirects int

	// FromCache reports whether the body came from the response cache
	FromCache bool
}

// Client fetches resources.
type Client struct {
	pool      *pool.Pool
	cache     *cache.ResponseCache
	transport *transport.Transport
	local     LocalReader
	config    Config
	ownsPool  bool
	logger    zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if !httpguts.ValidHeaderFieldValue(cfg.UserAgent) {
		return nil, fmt.Errorf("user-agent %q is not a valid header value", cfg.UserAgent)
	}

	if cfg.MaxRedirects < 0 {
		return nil, fmt.Errorf("max_redirects must be >= 0 (got %d)", cfg.MaxRedirects)
	}

	if cfg.DefaultFreshness < 0 {
		return nil, fmt.Errorf("default_freshness must be >= 0 (got %s)", cfg.DefaultFreshness)
	}

	// Collaborators tag their own component on the base logger.
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	logger := base.With().Str("component", "fetch-client").Logger()

	c := &Client{
		pool:   cfg.Pool,
		cache:  cfg.Cache,
		local:  cfg.Local,
		config: cfg,
		logger: logger,
	}

	if c.pool == nil {
		c.pool = pool.New(cfg.LivenessTimeout, base)
		c.ownsPool = true
	}

	if c.cache == nil {
		c.cache = cache.NewResponseCache(cache.NewMemoryStore(), cfg.DefaultFreshness, base)
	}

	if c.local == nil {
		c.local = local.NewReader(base)
	}

	dialer := cfg.Dialer
	if dialer == nil {
		nd := pool.DefaultNetDialer()
		if cfg.DialTimeout > 0 {
			nd.Timeout = cfg.DialTimeout
		}
		dialer = nd
	}

	c.transport = transport.New(c.pool, dialer, c.cache, cfg.UserAgent, base)
	return c, nil
}

// fetchState is the loop state of one logical fetch.
type fetchState struct {
	locator    locator.Locator
	viewSource bool
	hops       int
}

// Fetch parses raw and fetches it, following redirects.
func (c *Client) Fetch(ctx context.Context, raw string) (*Content, error) {
	loc, err := locator.Parse(raw)
	if err != nil {
		fetchesTotal.WithLabelValues("", "malformed").Inc()
		c.logger.Error().Err(err).Str("locator", raw).Msg("Fetch failed")
		return nil, fmt.Errorf("parse locator: %w", err)
	}
	return c.FetchLocator(ctx, loc)
}

// FetchLocator fetches loc, following redirects.
//
// Each 3xx response with a Location header counts one hop; the fetch fails
// with ErrRedirectLimitExceeded once the hop count exceeds MaxRedirects.
// The view-source flag of loc is carried through every hop.
func (c *Client) FetchLocator(ctx context.Context, loc locator.Locator) (*Content, error) {
	startTime := time.Now()
	state := fetchState{locator: loc, viewSource: loc.ViewSource}

	content, err := c.run(ctx, &state)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrRedirectLimitExceeded) {
			outcome = "redirect_limit"
		} else if errors.Is(err, ErrLocalRedirect) {
			outcome = "local_redirect"
		}
	} else if content.FromCache {
		outcome = "cache_hit"
	}
	fetchesTotal.WithLabelValues(string(state.locator.Scheme), outcome).Inc()
	fetchDuration.WithLabelValues(outcome).Observe(time.Since(startTime).Seconds())

	if err != nil {
		c.logger.Error().
			Err(err).
			Str("locator", loc.String()).
			Int("hops", state.hops).
			Msg("Fetch failed")
		return nil, &FetchError{Locator: state.locator.String(), Redirects: state.hops, Err: err}
	}

	c.logger.Info().
		Str("locator", content.Locator.String()).
		Int("status", content.Status).
		Int("hops", content.Redirects).
		Bool("from_cache", content.FromCache).
		Int("bytes", len(content.Body)).
		Msg("Fetch complete")
	return content, nil
}

func (c *Client) run(ctx context.Context, state *fetchState) (*Content, error) {
	for {
		content, next, err := c.step(ctx, state.locator)
		if err != nil {
			return nil, err
		}

		if next == nil {
			content.ViewSource = state.viewSource
			content.Redirects = state.hops
			return content, nil
		}

		if state.hops >= c.config.MaxRedirects {
			redirectLimitExceeded.Inc()
			return nil, fmt.Errorf("%w: more than %d hops", ErrRedirectLimitExceeded, c.config.MaxRedirects)
		}

		if state.locator.IsNetwork() && next.Scheme == locator.SchemeFile {
			return nil, fmt.Errorf("%w: %s to %s", ErrLocalRedirect, state.locator.Key(), next.Key())
		}

		state.hops++
		redirectsFollowed.Inc()
		c.logger.Debug().
			Str("from", state.locator.Key()).
			Str("to", next.Key()).
			Int("hops", state.hops).
			Msg("Following redirect")

		next.ViewSource = state.viewSource
		state.locator = *next
	}
}

// step performs one hop. It returns either final content or the locator
// of a redirect target.
func (c *Client) step(ctx context.Context, loc locator.Locator) (*Content, *locator.Locator, error) {
	switch loc.Scheme {
	case locator.SchemeFile, locator.SchemeData:
		res, err := c.local.Read(ctx, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("read local resource: %w", err)
		}
		return &Content{Body: res.Content, Locator: loc}, nil, nil

	case locator.SchemeHTTP, locator.SchemeHTTPS:
		if entry, ok := c.cache.Lookup(ctx, loc.Key()); ok {
			return &Content{
				Body:      entry.Content,
				Locator:   loc,
				Status:    200,
				Header:    entry.Headers,
				FromCache: true,
			}, nil, nil
		}

		res, err := c.transport.Execute(ctx, loc)
		if err != nil {
			return nil, nil, err
		}

		if res.Redirect {
			next, err := loc.Resolve(res.Location)
			if err != nil {
				return nil, nil, fmt.Errorf("resolve redirect from %s: %w", loc.Key(), err)
			}
			return nil, &next, nil
		}

		return &Content{
			Body:    res.Body,
			Locator: loc,
			Status:  res.Status,
			Header:  res.Header,
		}, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", transport.ErrUnsupportedScheme, loc.Scheme)
	}
}

// Close releases the idle connections of a pool the client created itself.
// An injected pool is left to its owner.
func (c *Client) Close() error {
	if !c.ownsPool {
		return nil
	}
	return c.pool.Close()
}

// Cache returns the response cache (for testing and cache administration).
func (c *Client) Cache() *cache.ResponseCache {
	return c.cache
}

// Pool returns the connection pool (for testing).
func (c *Client) Pool() *pool.Pool {
	return c.pool
}
