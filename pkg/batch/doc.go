// Package batch fetches many locators in parallel through one fetch client.
//
// All workers share the client's connection pool and response cache, so a
// batch over a handful of origins opens at most one connection per origin
// per concurrently active worker and serves repeated locators from the
// cache.
//
// Example usage:
//
//	config := batch.DefaultConfig()
//	fetcher := batch.NewFetcher(fetchClient, config)
//	results, err := fetcher.FetchAll(ctx, []string{
//		"http://example.org/",
//		"https://example.org/about",
//	})
//
// The batch fetcher:
//   - Deduplicates the locator list
//   - Spawns a worker pool (default 4 workers)
//   - Bounds every fetch with its own timeout
//   - Collects results with progress logging
//   - Handles errors gracefully (returns partial data)
package batch
