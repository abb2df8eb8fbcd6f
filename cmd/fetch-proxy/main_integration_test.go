//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/go-fetch/internal/testutil"
	"github.com/Sternrassler/go-fetch/pkg/batch"
	"github.com/Sternrassler/go-fetch/pkg/config"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cleanup := func() {
		redisC.Terminate(ctx)
	}

	return host + ":" + port.Port(), cleanup
}

func TestProxyWithRedisCache(t *testing.T) {
	addr, cleanup := setupTestRedis(t)
	defer cleanup()

	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/page", testutil.NewOKResponse("from origin", "Cache-Control: max-age=120"))

	cfg := config.Default()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisAddr = addr

	fetchClient, closeAll, err := cfg.NewClient(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer closeAll()

	p := &proxy{
		client:       fetchClient,
		batch:        batch.NewFetcher(fetchClient, cfg.BatchFetcherConfig()),
		fetchTimeout: 5 * time.Second,
		logger:       zerolog.Nop(),
	}
	h := p.routes()

	resp, body := get(t, h, fetchTarget(server.URL("/page")))
	if body != "from origin" || resp.Header.Get("X-Fetch-Cache") != "MISS" {
		t.Fatalf("first GET = %q, cache %q", body, resp.Header.Get("X-Fetch-Cache"))
	}

	resp, body = get(t, h, fetchTarget(server.URL("/page")))
	if body != "from origin" || resp.Header.Get("X-Fetch-Cache") != "HIT" {
		t.Errorf("second GET = %q, cache %q", body, resp.Header.Get("X-Fetch-Cache"))
	}
	if got := server.GetRequestCount(); got != 1 {
		t.Errorf("origin requests = %d, want 1", got)
	}
}
