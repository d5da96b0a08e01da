// The api binary serves availability lookups over the persisted schedule
// records: what is swimmable right now, and what is swimmable near a point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/poolhopper/freeswim-etl/internal/adapter/httpapi"
	mongoadapter "github.com/poolhopper/freeswim-etl/internal/adapter/mongo"
	"github.com/poolhopper/freeswim-etl/internal/config"
	"github.com/poolhopper/freeswim-etl/internal/observability"
	"github.com/poolhopper/freeswim-etl/internal/service"
)

// storeReadiness gates readiness on database reachability; the API has no
// pipeline of its own.
type storeReadiness struct {
	store *mongoadapter.Store
}

func (r storeReadiness) CheckReadiness(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := mongoadapter.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}

	availability := service.NewAvailability(store, cfg.IncludeInProgress, logger, metrics)
	srv := httpapi.NewQueryServer(cfg.HTTPAddr, storeReadiness{store: store}, availability, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
