package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/go-fetch/internal/testutil"
	"github.com/Sternrassler/go-fetch/pkg/client"
	"github.com/rs/zerolog"
)

// stubDoer answers from a table and records concurrency.
type stubDoer struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	delay    time.Duration
	active   atomic.Int32
	maxSeen  atomic.Int32
	deadline bool
}

func newStubDoer() *stubDoer {
	return &stubDoer{calls: make(map[string]int), fail: make(map[string]error)}
}

func (s *stubDoer) Fetch(ctx context.Context, raw string) (*client.Content, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if _, ok := ctx.Deadline(); ok {
		s.mu.Lock()
		s.deadline = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.calls[raw]++
	err := s.fail[raw]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return &client.Content{Body: "body of " + raw}, nil
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(newStubDoer(), Config{})

	if f.config.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", f.config.MaxConcurrency)
	}
	if f.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", f.config.Timeout)
	}
	if f.config.ProgressEvery != 50 {
		t.Errorf("ProgressEvery = %d, want 50", f.config.ProgressEvery)
	}
}

func TestFetchAll(t *testing.T) {
	doer := newStubDoer()
	doer.delay = 10 * time.Millisecond
	f := NewFetcher(doer, Config{MaxConcurrency: 3})

	var locators []string
	for i := 0; i < 12; i++ {
		locators = append(locators, fmt.Sprintf("http://example.test/%d", i))
	}
	locators = append(locators, locators[0], locators[1])

	results, err := f.FetchAll(context.Background(), locators)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(results) != 12 {
		t.Errorf("len(results) = %d, want 12", len(results))
	}
	for _, raw := range locators {
		if got := results[raw]; got == nil || got.Body != "body of "+raw {
			t.Errorf("results[%q] = %v", raw, got)
		}
		if doer.calls[raw] != 1 {
			t.Errorf("%s fetched %d times, want 1", raw, doer.calls[raw])
		}
	}
	if got := doer.maxSeen.Load(); got > 3 {
		t.Errorf("observed %d concurrent fetches, limit is 3", got)
	}
	if !doer.deadline {
		t.Error("fetches should run under a per-fetch deadline")
	}
}

func TestFetchAll_PartialFailure(t *testing.T) {
	doer := newStubDoer()
	boom := errors.New("boom")
	doer.fail["http://example.test/bad"] = boom
	f := NewFetcher(doer, DefaultConfig())

	results, err := f.FetchAll(context.Background(), []string{
		"http://example.test/good",
		"http://example.test/bad",
		"data:,fine",
	})

	if !errors.Is(err, boom) {
		t.Fatalf("FetchAll() error = %v, want boom", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2 partial results", len(results))
	}
	if _, ok := results["http://example.test/bad"]; ok {
		t.Error("failed locator must not appear in results")
	}
}

func TestFetchAll_Empty(t *testing.T) {
	f := NewFetcher(newStubDoer(), DefaultConfig())

	results, err := f.FetchAll(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("FetchAll(nil) = %v, %v", results, err)
	}
}

func TestFetchAll_Cancelled(t *testing.T) {
	doer := newStubDoer()
	doer.delay = time.Second
	f := NewFetcher(doer, Config{MaxConcurrency: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.FetchAll(ctx, []string{"data:,a", "data:,b", "data:,c"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchAll() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestFetchAll_SharedConnection(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()

	var locators []string
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("/page/%d", i)
		server.SetResponse(path, testutil.NewOKResponse("page "+path, "Cache-Control: no-store"))
		locators = append(locators, "http://example.test"+path)
	}

	logger := zerolog.Nop()
	dialer := testutil.NewCountingDialer(server)
	cfg := client.DefaultConfig("BatchTest/1.0")
	cfg.Dialer = dialer
	cfg.Logger = &logger
	cfg.LivenessTimeout = 20 * time.Millisecond

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	// One worker serialises the batch, so every fetch reuses one connection.
	f := NewFetcher(c, Config{MaxConcurrency: 1})
	results, err := f.FetchAll(context.Background(), locators)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(results) != len(locators) {
		t.Errorf("len(results) = %d, want %d", len(results), len(locators))
	}
	if got := dialer.Dials(); got != 1 {
		t.Errorf("Dials() = %d, want 1", got)
	}
}

func TestFetchAll_ConcurrentWorkersShareCache(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/cached", testutil.NewOKResponse("cached", "Cache-Control: max-age=60"))

	logger := zerolog.Nop()
	cfg := client.DefaultConfig("BatchTest/1.0")
	cfg.Dialer = testutil.NewCountingDialer(server)
	cfg.Logger = &logger

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Fetch(context.Background(), "http://example.test/cached"); err != nil {
		t.Fatalf("warm-up Fetch() error = %v", err)
	}

	// Distinct locator strings, one cache key.
	locators := []string{
		"http://example.test/cached",
		"view-source:http://example.test/cached",
		"http://example.test:80/cached",
	}
	results, err := NewFetcher(c, DefaultConfig()).FetchAll(context.Background(), locators)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	for _, raw := range locators {
		if !results[raw].FromCache {
			t.Errorf("%s not served from cache", raw)
		}
	}
	if got := server.GetRequestCount(); got != 1 {
		t.Errorf("server requests = %d, want 1", got)
	}
}
