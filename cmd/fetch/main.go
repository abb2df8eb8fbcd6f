// Command fetch retrieves one resource and prints it to stdout with markup
// stripped. A view-source: locator prints the raw body instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/go-fetch/pkg/config"
	"github.com/Sternrassler/go-fetch/pkg/display"
	"github.com/Sternrassler/go-fetch/pkg/logging"
)

// defaultLocator is opened when no locator is given.
const defaultLocator = "data:text/html,<html><body><h1>go-fetch</h1>" +
	"<p>Usage: fetch [-config path] locator</p>" +
	"<p>Locators: http://, https://, file://, data:, view-source:</p></body></html>"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("fetch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", getEnv("FETCH_CONFIG", ""), "path to fetch.yaml")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() > 1 {
		fmt.Fprintln(stderr, "usage: fetch [-config path] [locator]")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	logCfg := cfg.Logging()
	logCfg.Output = stderr
	base := logging.Setup(logCfg)
	logger := base.With().Str("component", "fetch-cli").Logger()

	raw := flags.Arg(0)
	if raw == "" {
		raw = defaultLocator
		fmt.Fprintln(stderr, "No locator provided. Opening the built-in help page.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetchClient, closeAll, err := cfg.NewClient(ctx, base)
	if err != nil {
		fmt.Fprintf(stderr, "init client: %v\n", err)
		return 1
	}
	defer closeAll()

	content, err := fetchClient.Fetch(ctx, raw)
	if err != nil {
		logger.Error().Err(err).Str("locator", raw).Msg("Fetch failed")
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	if err := display.Show(stdout, content.Body, content.ViewSource); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
