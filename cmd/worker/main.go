// Package main provides the entrypoint for the dataset import worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/api/middleware"
	"github.com/bluebikes/stationtraffic/internal/api/models"
	"github.com/bluebikes/stationtraffic/internal/api/response"
	"github.com/bluebikes/stationtraffic/internal/database"
	"github.com/bluebikes/stationtraffic/internal/provider/resilience"
	"github.com/bluebikes/stationtraffic/internal/telemetry"
	"github.com/bluebikes/stationtraffic/internal/traffic"
	"github.com/bluebikes/stationtraffic/internal/traffic/bluebikes"
	"github.com/bluebikes/stationtraffic/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "stationtraffic-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting dataset import worker")

	// Worker also exposes health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryConfig, err := telemetry.ConfigFromEnv(serviceName, Version, env)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid telemetry configuration")
	}
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	importConfig, err := worker.ImportConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid import configuration")
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	repo := traffic.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure traffic schema")
	}

	// Source feed
	httpConfig := resilience.DefaultClientConfig(bluebikes.ProviderName)
	httpConfig.Logger = log
	source := bluebikes.NewClient(bluebikes.ClientConfig{
		StationsURL: os.Getenv("STATIONS_URL"),
		TripsURL:    os.Getenv("TRIPS_URL"),
		HTTPClient:  resilience.NewClient(httpConfig),
		Logger:      log,
	})
	resilience.GlobalRegistry.Register(source.Name(), source.HTTPClient())

	importJob := worker.NewImportJob(worker.ImportJobConfig{
		Config:     importConfig,
		Source:     source,
		Repository: repo,
		Recorder:   providerMetrics,
		Logger:     log,
	})

	// Health and job status server
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, models.Health{
			Status: models.HealthStatusOK,
			Time:   models.Timestamp(time.Now()),
			Details: map[string]interface{}{
				"version":   Version,
				"buildTime": BuildTime,
			},
		})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		status := models.HealthStatusOK
		if m := importJob.GetMetrics(); m.LastError != "" {
			status = models.HealthStatusDegraded
		}
		response.JSON(w, r, http.StatusOK, models.Health{
			Status:  status,
			Time:    models.Timestamp(time.Now()),
			Details: importJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start health check server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start worker loop: Pub/Sub when configured, otherwise an interval ticker.
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if projectID != "" && subscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			ImportJob:        importJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		go runTicker(ctx, importJob, log)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// runTicker imports once at startup and then on every interval.
func runTicker(ctx context.Context, job *worker.ImportJob, log zerolog.Logger) {
	log.Info().Dur("interval", job.Interval()).Msg("import ticker started")

	if _, err := job.Run(ctx); err != nil {
		log.Warn().Err(err).Msg("startup import failed")
	}

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("import ticker stopped")
			return
		case <-ticker.C:
			if _, err := job.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduled import failed")
			}
		}
	}
}
