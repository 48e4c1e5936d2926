// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/draftdesk/internal/app"
	"github.com/unclebandit/draftdesk/internal/config"
	"github.com/unclebandit/draftdesk/internal/controller"
	"github.com/unclebandit/draftdesk/internal/handler"
	"github.com/unclebandit/draftdesk/internal/logging"
	"github.com/unclebandit/draftdesk/internal/middleware"
	"github.com/unclebandit/draftdesk/internal/sanitize"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "console")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", "server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()

	review := components.ReviewService(cfg, log)
	items := controller.NewItemController(review, sanitize.NewRenderer())
	ingest := handler.NewIngestHandler(components.Generator(cfg, log), review)
	router := handler.NewRouter(items, ingest, middleware.NewTokenAuth(cfg.JWTSecret), log)

	if cfg.EmbeddedDispatcher {
		dispatcher := components.Dispatcher(cfg, log.With().Str("component", "dispatcher").Logger())
		go func() {
			if err := dispatcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("embedded dispatcher stopped")
			}
		}()
		log.Info().Msg("📬 embedded dispatcher running")
	} else if cfg.AMQPURL == "" {
		log.Warn().Msg("⚠️ no dispatcher in this process and no AMQP_URL; approvals wait for an external worker scan")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("🚀 server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
