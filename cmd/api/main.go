// Api serves the ingested Hacker News items over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"

	"github.com/jdholdren/hnews/internal/api"
	"github.com/jdholdren/hnews/internal/logger"
	"github.com/jdholdren/hnews/internal/migrations"
	"github.com/jdholdren/hnews/internal/sqlite"
)

type config struct {
	Database   string `env:"DATABASE, required"`
	Port       int    `env:"PORT, default=4444"`
	CorsOrigin string `env:"CORS_ORIGIN, default=*"`

	// Which format to use for logging: either text or json
	LoggerFormat string     `env:"LOGGER_FORMAT, default=text"`
	LogLevel     slog.Level `env:"LOG_LEVEL, default=info"`
}

func main() {
	ctx := context.Background()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stderr, cfg.LoggerFormat, cfg.LogLevel))

	if err := runServer(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg config) error {
	dbx, err := sqlite.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always. The worker may not have started yet.
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	s := api.NewServer(api.ServerConfig{
		Port:       cfg.Port,
		CorsOrigin: cfg.CorsOrigin,
	}, sqlite.New(dbx))

	var g run.Group
	g.Add(func() error {
		slog.Info("listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}
		return nil
	}, func(error) {
		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	var sigErr run.SignalError
	if err := g.Run(); err != nil && !errors.As(err, &sigErr) {
		return err
	}

	return nil
}
