package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/running-index-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/running-index-service/internal/adapter/kafka"
	"github.com/couchcryptid/running-index-service/internal/adapter/kma"
	"github.com/couchcryptid/running-index-service/internal/adapter/mapbox"
	"github.com/couchcryptid/running-index-service/internal/config"
	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
	"github.com/couchcryptid/running-index-service/internal/pipeline"
	"github.com/couchcryptid/running-index-service/internal/runindex"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	fetcher, err := newFetcher(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to set up KMA fetcher", "error", err)
		os.Exit(1)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	svc := runindex.NewService(fetcher, geocoder, cfg.Neutral.Defaults(), logger, metrics)
	api := httpadapter.NewAPI(svc, cfg.Location.Point(), logger)

	ready := httpadapter.AllReady{fetcher}

	var (
		p      *pipeline.Pipeline
		writer *kafkaadapter.Writer
	)
	if cfg.Poll.Enabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		p = pipeline.New(cfg.Poll.Points, pipeline.NewTransformer(svc), writer, logger, metrics, cfg.Poll.Concurrency)
		ready = append(ready, p)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, api, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start publishing pipeline.
	pipelineDone := make(chan struct{})
	if p != nil {
		go func() {
			defer close(pipelineDone)
			if err := p.Run(ctx, cfg.Poll.Interval); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		close(pipelineDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newFetcher returns the cached KMA client, or a fixture replayer when
// KMA_FIXTURES is set.
func newFetcher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (kmaFetcher, error) {
	if cfg.KMA.Fixtures != "" {
		fixtures, err := kma.LoadFixtures(cfg.KMA.Fixtures)
		if err != nil {
			return nil, err
		}
		logger.Warn("serving recorded KMA fixtures", "path", cfg.KMA.Fixtures, "count", len(fixtures))
		return kma.NewFixtureFetcher(fixtures), nil
	}

	if cfg.KMA.ServiceKey == "" {
		logger.Warn("KMA_SERVICE_KEY is not set; KMA requests will fail")
	}
	client := kma.NewClient(cfg.KMA.ServiceKey, cfg.KMA.BaseURL, cfg.KMA.Timeout, logger, metrics)
	return kma.NewCachedFetcher(client, cfg.KMA.CacheSize, metrics), nil
}

type kmaFetcher interface {
	kma.Fetcher
	httpadapter.ReadinessChecker
}
