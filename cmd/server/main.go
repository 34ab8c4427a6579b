package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"celebrate/internal/app"
	"celebrate/internal/platform/config"
	"celebrate/internal/platform/httpserver"
	"celebrate/internal/platform/logger"
	"celebrate/internal/platform/tracing"
	"celebrate/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the engine, serves HTTP, and runs the background jobs until a
// shutdown signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogFormat, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "celebrate", cfg.Environment())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := app.Build(ctx, cfg, log, app.Options{Metrics: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.DB != nil && cfg.Database.Migrate {
		if err := migrations.Apply(ctx, a.DB); err != nil {
			return err
		}
		log.Info("database migrations applied")
	}

	srv := httpserver.New(cfg.Server.Addr, a.Router())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if cfg.Worker.Enabled {
		g.Go(func() error { return a.Watcher.Run(gctx) })
		g.Go(func() error { return a.Retries.Run(gctx) })
		g.Go(func() error { return a.Expirer.Run(gctx) })
	} else {
		log.Info("background jobs disabled")
	}
	if a.Relay != nil {
		g.Go(func() error { return a.Relay.Run(gctx) })
	}

	log.Info("starting celebrate",
		"addr", cfg.Server.Addr,
		"env", cfg.Environment(),
		"postgres", a.DB != nil,
		"redis", a.Redis != nil,
		"kafka", a.Kafka != nil,
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("celebrate stopped")
	return nil
}
