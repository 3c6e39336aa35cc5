// Package api provides the HTTP API for station traffic.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/api/handler"
	"github.com/bluebikes/stationtraffic/internal/api/middleware"
	"github.com/bluebikes/stationtraffic/internal/api/models"
	"github.com/bluebikes/stationtraffic/internal/api/response"
	"github.com/bluebikes/stationtraffic/internal/auth"
	"github.com/bluebikes/stationtraffic/internal/provider/resilience"
	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version        string
	BuildTime      string
	Logger         zerolog.Logger
	ServiceName    string
	Metrics        *middleware.Metrics
	TrafficService *traffic.Service
	Registry       *resilience.Registry
	Database       handler.Pinger
	JWTService     *auth.JWTService
	RequireTLS     bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "stationtraffic-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route matches "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewProblem(
			models.ProblemTypeMethodNotAllowed,
			"Method not allowed",
			http.StatusMethodNotAllowed,
			middleware.GetRequestID(r.Context()),
		).WithDetail(r.Method + " is not supported on " + r.URL.Path)
		response.Error(w, r, problem)
	})

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Traffic:   cfg.TrafficService,
		Registry:  cfg.Registry,
		Database:  cfg.Database,
	})
	trafficHandler := handler.NewTrafficHandler(cfg.TrafficService, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.TrafficService, cfg.Logger)

	// Create auth middleware
	operatorAuth := middleware.OperatorAuth(cfg.JWTService)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires an operator token
			r.With(operatorAuth).Get("/status", opsHandler.SystemStatus)
		})

		// Station traffic endpoints (public)
		r.Route("/stations", func(r chi.Router) {
			// Aggregates every trip, strict rate limiting
			r.With(expensiveRateLimit).Get("/traffic", trafficHandler.GetSnapshot)

			r.Route("/{code}", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/traffic", trafficHandler.GetStationTraffic)
				r.Get("/hourly", trafficHandler.GetHourlyProfile)
			})
		})

		// Admin endpoints (operator token) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(operatorAuth)
			r.Use(middleware.RateLimitByOperator(middleware.AdminRateLimit)) // 10 req/min per operator
			r.Use(middleware.RequireJSON)

			r.Post("/cache/invalidate", adminHandler.InvalidateCache)
		})
	})

	return r
}
