// Package handler provides HTTP handlers for the station traffic API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/bluebikes/stationtraffic/internal/api/models"
	"github.com/bluebikes/stationtraffic/internal/api/response"
	"github.com/bluebikes/stationtraffic/internal/provider/resilience"
	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// readinessTimeout bounds the dependency checks in ReadinessCheck.
const readinessTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig holds dependencies for OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Traffic is checked for loaded data on readiness.
	Traffic *traffic.Service

	// Registry reports provider circuit state (default: resilience.GlobalRegistry).
	Registry *resilience.Registry

	// Database is optional; it is pinged when set.
	Database Pinger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	traffic   *traffic.Service
	registry  *resilience.Registry
	database  Pinger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	registry := cfg.Registry
	if registry == nil {
		registry = resilience.GlobalRegistry
	}

	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		traffic:   cfg.Traffic,
		registry:  registry,
		database:  cfg.Database,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - ready once traffic data is loaded
// and the database, if any, answers a ping.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	details := map[string]interface{}{}
	ready := true

	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			ready = false
			details["database"] = err.Error()
		} else {
			details["database"] = "ok"
		}
	}

	if h.traffic != nil {
		if h.traffic.Ready() {
			details["traffic"] = "ok"
		} else {
			ready = false
			details["traffic"] = "data not loaded"
		}
	}

	health := models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}
	status := http.StatusOK
	if !ready {
		health.Status = models.HealthStatusFail
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.database != nil {
		sub := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		if err := h.database.Ping(ctx); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	for _, ph := range h.registry.GetAllHealth() {
		ps := models.ProviderStatus{
			Provider:      ph.Name,
			Status:        providerStatus(ph),
			CircuitState:  ph.CircuitState.String(),
			LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		status.Providers = append(status.Providers, ps)
	}

	if h.traffic != nil {
		stats := h.traffic.CacheStats()
		cache := &models.CacheStatus{
			Provider:      stats.Provider,
			TripCount:     stats.TripCount,
			TripsFresh:    stats.TripCacheFresh,
			StationCount:  stats.StationCount,
			StationsFresh: stats.StationCacheFresh,
		}
		if stats.HasTripCache {
			cache.TripsFetchedAt = models.TimestampPtr(&stats.TripsFetchedAt)
		}
		if stats.HasStationCache {
			cache.StationsFetchedAt = models.TimestampPtr(&stats.StationsFetchedAt)
		}
		status.Cache = cache

		sub := models.SubsystemStatus{Name: "traffic-cache", Status: models.HealthStatusOK}
		switch {
		case !stats.HasTripCache || !stats.HasStationCache:
			detail := "data not loaded"
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
		case !stats.TripCacheFresh || !stats.StationCacheFresh:
			detail := "serving expired data"
			sub.Status = models.HealthStatusDegraded
			sub.Detail = &detail
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	status.Status = overallStatus(status)

	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch ph.Status() {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// overallStatus is FAIL if any subsystem fails, DEGRADED if anything else is
// not OK, and OK otherwise. Provider failures only degrade.
func overallStatus(s models.SystemStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, sub := range s.Subsystems {
		switch sub.Status {
		case models.HealthStatusFail:
			return models.HealthStatusFail
		case models.HealthStatusDegraded:
			result = models.HealthStatusDegraded
		}
	}
	for _, p := range s.Providers {
		if p.Status != models.HealthStatusOK {
			result = models.HealthStatusDegraded
		}
	}
	return result
}
