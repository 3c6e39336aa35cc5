// Package main provides the entrypoint for the station traffic API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/api"
	"github.com/bluebikes/stationtraffic/internal/api/middleware"
	"github.com/bluebikes/stationtraffic/internal/auth"
	"github.com/bluebikes/stationtraffic/internal/database"
	"github.com/bluebikes/stationtraffic/internal/provider/resilience"
	"github.com/bluebikes/stationtraffic/internal/telemetry"
	"github.com/bluebikes/stationtraffic/internal/traffic"
	"github.com/bluebikes/stationtraffic/internal/traffic/bluebikes"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Traffic data sources selected by TRAFFIC_SOURCE.
const (
	sourceRemote   = "remote"
	sourcePostgres = "postgres"
)

func main() {
	const serviceName = "stationtraffic-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting station traffic API")

	// Get configuration from environment
	port := getEnvOrDefault("APP_PORT", "8080")
	env := getEnvOrDefault("APP_ENV", "development")
	source := getEnvOrDefault("TRAFFIC_SOURCE", sourceRemote)

	window, err := windowFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid traffic window configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()

	telemetryConfig, err := telemetry.ConfigFromEnv(serviceName, Version, env)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid telemetry configuration")
	}
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryConfig.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryConfig.OTLPEndpoint).
			Float64("sample_ratio", telemetryConfig.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Select the traffic data source
	registry := resilience.GlobalRegistry
	var (
		provider traffic.Provider
		pool     *pgxpool.Pool
	)

	switch source {
	case sourceRemote:
		httpConfig := resilience.DefaultClientConfig(bluebikes.ProviderName)
		httpConfig.Logger = log
		client := bluebikes.NewClient(bluebikes.ClientConfig{
			StationsURL: os.Getenv("STATIONS_URL"),
			TripsURL:    os.Getenv("TRIPS_URL"),
			HTTPClient:  resilience.NewClient(httpConfig),
			Logger:      log,
		})
		registry.Register(client.Name(), client.HTTPClient())
		provider = client
		log.Info().Msg("serving traffic from the remote Bluebikes feed")

	case sourcePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err = database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		repo := traffic.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure traffic schema")
		}
		repoProvider := traffic.NewRepositoryProvider(repo, sourcePostgres)
		registry.Register(repoProvider.Name(), nil)
		provider = repoProvider

	default:
		log.Fatal().Str("source", source).Msg("TRAFFIC_SOURCE must be remote or postgres")
	}

	trafficService := traffic.NewService(traffic.ServiceConfig{
		Provider: provider,
		Logger:   log,
		Window:   &window,
		Metrics:  providerMetrics,
		Health:   registry,
	})
	log.Info().
		Int("tolerance_minutes", window.Tolerance).
		Str("basis", string(window.Basis)).
		Msg("traffic service initialized")

	// Load data in the background; readiness reports when it is in.
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := trafficService.Warm(warmCtx); err != nil {
			log.Error().Err(err).Msg("initial traffic load failed")
			return
		}
		log.Info().Msg("initial traffic load completed")
	}()

	// Operator tokens for admin endpoints
	signingKey := os.Getenv("ADMIN_JWT_SIGNING_KEY")
	if signingKey == "" {
		log.Warn().Msg("ADMIN_JWT_SIGNING_KEY not set - admin endpoints will reject all requests")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{SigningKey: signingKey})

	routerConfig := api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		TrafficService: trafficService,
		Registry:       registry,
		JWTService:     jwtService,
		RequireTLS:     os.Getenv("REQUIRE_TLS") == "true",
	}
	if pool != nil {
		routerConfig.Database = pool
	}

	// Create router with configuration
	router := api.NewRouter(routerConfig)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// windowFromEnv reads TRAFFIC_WINDOW_BASIS and TRAFFIC_TOLERANCE_MINUTES.
// The tolerance defaults to the preset for the chosen basis.
func windowFromEnv() (traffic.Window, error) {
	basis, err := traffic.ParseBasis(os.Getenv("TRAFFIC_WINDOW_BASIS"))
	if err != nil {
		return traffic.Window{}, err
	}

	window := traffic.DefaultWindow
	if basis == traffic.BasisStart {
		window = traffic.StartOnlyWindow
	}

	if v := os.Getenv("TRAFFIC_TOLERANCE_MINUTES"); v != "" {
		tolerance, err := strconv.Atoi(v)
		if err != nil {
			return traffic.Window{}, fmt.Errorf("TRAFFIC_TOLERANCE_MINUTES: %w", err)
		}
		window.Tolerance = tolerance
	}

	return window, window.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
