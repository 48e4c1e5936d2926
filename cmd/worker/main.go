// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/unclebandit/draftdesk/internal/app"
	"github.com/unclebandit/draftdesk/internal/config"
	"github.com/unclebandit/draftdesk/internal/logging"
)

// dispatchRunner is the part of the dispatcher the worker drives.
type dispatchRunner interface {
	Run(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "console")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", "worker").Logger()

	if err := app.RequireSharedStore(cfg); err != nil {
		log.Fatal().Err(err).Msg("worker needs a shared store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build components")
	}
	defer components.Close()

	if err := runWorker(ctx, components.Dispatcher(cfg, log), log); err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
}

func runWorker(ctx context.Context, d dispatchRunner, log zerolog.Logger) error {
	log.Info().Msg("👷 worker running, waiting for dispatch signals")
	err := d.Run(ctx)
	log.Info().Msg("worker shut down")
	return err
}
