// Command fetch-proxy exposes the fetch engine over HTTP.
//
//	GET /health                  liveness check
//	GET /fetch?url=<locator>     body of the resource after redirects
//	GET /batch?url=<a>&url=<b>   JSON map of locator to result
//	GET /metrics                 Prometheus metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/batch"
	"github.com/Sternrassler/go-fetch/pkg/client"
	"github.com/Sternrassler/go-fetch/pkg/config"
	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/Sternrassler/go-fetch/pkg/logging"
	"github.com/Sternrassler/go-fetch/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", getEnv("FETCH_CONFIG", ""), "path to fetch.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	base := logging.Setup(cfg.Logging())
	logger := base.With().Str("component", "fetch-proxy").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetchClient, closeAll, err := cfg.NewClient(ctx, base)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create fetch client")
	}
	defer closeAll()

	p := &proxy{
		client:       fetchClient,
		batch:        batch.NewFetcher(fetchClient, cfg.BatchFetcherConfig()),
		fetchTimeout: cfg.Proxy.FetchTimeout,
		allowLocal:   cfg.Proxy.AllowLocal,
		logger:       logger,
	}

	srv := &http.Server{
		Addr:              cfg.Proxy.Address,
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Proxy.Address).
			Str("user_agent", cfg.UserAgent).
			Str("cache_backend", cfg.Cache.Backend).
			Msg("Starting fetch proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Shutdown incomplete")
	}
	logger.Info().Msg("Fetch proxy stopped")
}

type proxy struct {
	client       *client.Client
	batch        *batch.Fetcher
	fetchTimeout time.Duration
	allowLocal   bool
	logger       zerolog.Logger
}

var errLocalRefused = errors.New("file: and data: locators are disabled")

// checkLocator parses raw and refuses local schemes unless allowed.
func (p *proxy) checkLocator(raw string) (locator.Locator, error) {
	loc, err := locator.Parse(raw)
	if err != nil {
		return locator.Locator{}, err
	}
	if !loc.IsNetwork() && !p.allowLocal {
		return locator.Locator{}, fmt.Errorf("%w: %s", errLocalRefused, raw)
	}
	return loc, nil
}

func (p *proxy) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/fetch", p.fetchHandler)
	r.Get("/batch", p.batchHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (p *proxy) fetchHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	loc, err := p.checkLocator(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.fetchTimeout)
	defer cancel()

	content, err := p.client.FetchLocator(ctx, loc)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, locator.ErrMalformed) {
			status = http.StatusBadRequest
		}
		p.logger.Warn().
			Err(err).
			Str("locator", raw).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Proxy fetch failed")
		http.Error(w, fmt.Sprintf("fetch failed: %v", err), status)
		return
	}

	cacheState := "MISS"
	if content.FromCache {
		cacheState = "HIT"
	}
	w.Header().Set("X-Fetch-Cache", cacheState)
	w.Header().Set("X-Fetch-Redirects", strconv.Itoa(content.Redirects))
	w.Header().Set("X-Fetch-Locator", content.Locator.String())
	if ct, ok := content.Header["content-type"]; ok {
		w.Header().Set("Content-Type", ct)
	}

	status := content.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if _, err := w.Write([]byte(content.Body)); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// batchResult is one entry of a /batch response.
type batchResult struct {
	Status    int    `json:"status,omitempty"`
	Body      string `json:"body,omitempty"`
	Redirects int    `json:"redirects"`
	FromCache bool   `json:"from_cache"`
}

type batchResponse struct {
	Results map[string]batchResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

func (p *proxy) batchHandler(w http.ResponseWriter, r *http.Request) {
	locators := r.URL.Query()["url"]
	if len(locators) == 0 {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	for _, raw := range locators {
		if _, err := p.checkLocator(raw); errors.Is(err, errLocalRefused) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	contents, err := p.batch.FetchAll(r.Context(), locators)

	resp := batchResponse{Results: make(map[string]batchResult, len(contents))}
	for raw, content := range contents {
		resp.Results[raw] = batchResult{
			Status:    content.Status,
			Body:      content.Body,
			Redirects: content.Redirects,
			FromCache: content.FromCache,
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if len(resp.Results) == 0 && err != nil {
		w.WriteHeader(http.StatusBadGateway)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to write batch response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
