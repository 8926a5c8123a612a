// Worker ingests Hacker News items into sqlite.
//
// Cycles run on a Temporal schedule, or once with RUN_ONCE for backfills and cron.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	tworker "go.temporal.io/sdk/worker"
	"go.uber.org/fx"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/hnews/internal/fetch"
	"github.com/jdholdren/hnews/internal/ingest"
	"github.com/jdholdren/hnews/internal/logger"
	"github.com/jdholdren/hnews/internal/migrations"
	"github.com/jdholdren/hnews/internal/sqlite"
	"github.com/jdholdren/hnews/internal/worker"
)

type config struct {
	Database          string `env:"DATABASE, required"`
	TemporalHostPort  string `env:"TEMPORAL_HOST_PORT"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE"`

	HNBaseURL            string        `env:"HN_BASE_URL, default=https://hacker-news.firebaseio.com/v0"`
	FetchTimeout         time.Duration `env:"FETCH_TIMEOUT, default=10s"`
	BootstrapLimit       int           `env:"BOOTSTRAP_LIMIT, default=100"`
	CycleInterval        time.Duration `env:"CYCLE_INTERVAL, default=60s"`
	MaxConcurrentFetches int           `env:"MAX_CONCURRENT_FETCHES, default=0"`
	FetchAuthors         bool          `env:"FETCH_AUTHORS, default=true"`
	RunOnce              bool          `env:"RUN_ONCE, default=false"`

	// Which format to use for logging: either text or json
	LoggerFormat string     `env:"LOGGER_FORMAT, default=text"`
	LogLevel     slog.Level `env:"LOG_LEVEL, default=info"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stdout, cfg.LoggerFormat, cfg.LogLevel))

	// Connect to the sqlite db
	dbx, err := sqlite.Open(cfg.Database)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	var (
		repo     = sqlite.New(dbx)
		hnClient = fetch.NewClient(fetch.Config{
			BaseURL:       cfg.HNBaseURL,
			Timeout:       cfg.FetchTimeout,
			MaxConcurrent: cfg.MaxConcurrentFetches,
		})
		ingester = ingest.New(hnClient, ingest.NewChecker(repo), repo, ingest.Config{
			BootstrapLimit: cfg.BootstrapLimit,
			FetchAuthors:   cfg.FetchAuthors,
		})
	)

	if cfg.RunOnce {
		r, err := ingester.RunCycle(ctx)
		if err != nil {
			log.Fatalf("error running cycle: %s", err)
		}
		json.NewEncoder(os.Stdout).Encode(r)
		return
	}

	if cfg.TemporalHostPort == "" {
		log.Fatalln("TEMPORAL_HOST_PORT is required unless RUN_ONCE is set")
	}
	if cfg.TemporalNamespace == "" {
		cfg.TemporalNamespace = worker.DefaultNamespace
	}

	// Retry until temporal is ready
	var temporalCli client.Client
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalHostPort,
			Namespace: cfg.TemporalNamespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		temporalCli = c

		return nil
	}); err != nil {
		log.Fatalln("Unable to create Temporal client:", err)
	}

	if err := worker.EnsureNamespace(ctx, temporalCli.WorkflowService(), cfg.TemporalNamespace); err != nil {
		log.Fatalf("error ensuring namespace: %s", err)
	}

	// Start the application
	fx.New(
		fx.Supply(
			fx.Annotate(ctx, fx.As(new(context.Context))),
			fx.Annotate(temporalCli, fx.As(new(client.Client))),
			fx.Annotate(ingester, fx.As(new(worker.Cycler))),
			cfg.CycleInterval,
		),
		worker.Module,
		fx.Invoke(func(tworker.Worker) {}), // Start the worker
	).Run()
}
