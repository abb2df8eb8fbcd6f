package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	batchFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_fetches_total",
		Help: "Total fetches issued by batch workers by result",
	}, []string{"result"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_batch_duration_seconds",
		Help:    "Duration of whole batches in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches
	MaxConcurrency int
	// Timeout per fetch, redirects included
	Timeout time.Duration
	// ProgressEvery logs progress after this many completed fetches
	ProgressEvery int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		ProgressEvery:  50,
	}
}

// Doer is the single-locator fetch the batch fetcher fans out over.
// *client.Client implements it.
type Doer interface {
	Fetch(ctx context.Context, raw string) (*client.Content, error)
}

// Result represents the outcome of fetching one locator
type Result struct {
	Locator string
	Content *client.Content
	Error   error
}

// Fetcher handles parallel fetching of multiple locators
type Fetcher struct {
	doer   Doer
	config Config
}

// NewFetcher creates a new batch fetcher
func NewFetcher(doer Doer, config Config) *Fetcher {
	if doer == nil {
		panic("batch fetcher needs a client")
	}
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = defaults.ProgressEvery
	}

	return &Fetcher{
		doer:   doer,
		config: config,
	}
}

// FetchAll fetches every locator in parallel using a worker pool.
// Returns map of locator -> content for successful fetches. When some
// fetches fail the partial map is returned together with the first error.
func (f *Fetcher) FetchAll(ctx context.Context, locators []string) (map[string]*client.Content, error) {
	start := time.Now()
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	unique := dedupe(locators)
	results := make(map[string]*client.Content, len(unique))
	if len(unique) == 0 {
		return results, nil
	}

	log.Info().
		Int("locators", len(unique)).
		Int("workers", f.config.MaxConcurrency).
		Msg("Starting batch fetch")

	// The queue holds every locator up front, so producers never block.
	queue := make(chan string, len(unique))
	for _, raw := range unique {
		queue <- raw
	}
	close(queue)

	workers := f.config.MaxConcurrency
	if workers > len(unique) {
		workers = len(unique)
	}

	fetched := make(chan Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go f.worker(ctx, queue, fetched, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(fetched)
	}()

	var (
		firstErr error
		failed   int
		done     int
	)
	for result := range fetched {
		done++
		if result.Error != nil {
			failed++
			if firstErr == nil {
				firstErr = result.Error
			}
			log.Warn().
				Err(result.Error).
				Str("locator", result.Locator).
				Msg("Batch fetch failed")
			continue
		}

		results[result.Locator] = result.Content

		if done%f.config.ProgressEvery == 0 {
			log.Info().
				Int("fetched", done).
				Int("total", len(unique)).
				Float64("progress_pct", float64(done)/float64(len(unique))*100).
				Msg("Batch progress")
		}
	}

	if err := ctx.Err(); err != nil && done < len(unique) {
		return results, fmt.Errorf("batch cancelled (partial data: %d/%d locators): %w", len(results), len(unique), err)
	}

	if firstErr != nil {
		return results, fmt.Errorf("%d of %d fetches failed (partial data: %d/%d locators): %w",
			failed, len(unique), len(results), len(unique), firstErr)
	}

	log.Info().
		Int("locators", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, nil
}

// worker processes locators from the queue
func (f *Fetcher) worker(ctx context.Context, queue <-chan string, results chan<- Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for raw := range queue {
		// Check context cancellation
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
		content, err := f.doer.Fetch(fetchCtx, raw)
		cancel()

		if err != nil {
			batchFetches.WithLabelValues("error").Inc()
		} else {
			batchFetches.WithLabelValues("success").Inc()
		}

		results <- Result{Locator: raw, Content: content, Error: err}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker completed")
	}
}

func dedupe(locators []string) []string {
	seen := make(map[string]struct{}, len(locators))
	unique := make([]string, 0, len(locators))
	for _, raw := range locators {
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		unique = append(unique, raw)
	}
	return unique
}
