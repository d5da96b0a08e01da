// The etl binary runs the free-swim refinement pipeline: it loops over the
// facility catalog on a fixed interval, scraping, extracting, and persisting
// schedule records, while serving health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/poolhopper/freeswim-etl/internal/adapter/httpapi"
	kafkaadapter "github.com/poolhopper/freeswim-etl/internal/adapter/kafka"
	"github.com/poolhopper/freeswim-etl/internal/adapter/llm"
	mongoadapter "github.com/poolhopper/freeswim-etl/internal/adapter/mongo"
	"github.com/poolhopper/freeswim-etl/internal/adapter/ocr"
	"github.com/poolhopper/freeswim-etl/internal/adapter/scrape"
	"github.com/poolhopper/freeswim-etl/internal/config"
	"github.com/poolhopper/freeswim-etl/internal/observability"
	"github.com/poolhopper/freeswim-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateExtraction(); err != nil {
		slog.Error("invalid config", "error", err)
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

	fetcher := scrape.NewClient(cfg.FetchTimeout, logger)

	// OCR is feature-flagged: without an endpoint and secret, blog-style
	// sources are refined from page text alone.
	var recognizer pipeline.Recognizer
	if cfg.OCREnabled {
		recognizer = ocr.NewClient(cfg.OCREndpoint, cfg.OCRSecret, cfg.OCRTimeout, logger)
		logger.Info("ocr enabled", "endpoint", cfg.OCREndpoint)
	} else {
		logger.Info("ocr disabled")
	}

	extractor := llm.NewClient(llm.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.OpenAIModel,
		MaxAttempts:  cfg.LLMMaxAttempts,
		RetryBackoff: cfg.LLMRetryBackoff,
	}, logger, metrics)

	var publisher pipeline.Publisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = kafkaPublisher
		logger.Info("refinement events enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("refinement events disabled")
	}

	throttle := rate.NewLimiter(rate.Every(cfg.FacilityThrottle), 1)
	refiner := pipeline.New(fetcher, recognizer, extractor, store, publisher, throttle, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, refiner, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := refiner.Run(ctx, cfg.RefineInterval); err != nil {
			logger.Error("refinement loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
