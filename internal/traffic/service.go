package traffic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider defines the interface for station and trip data sources.
type Provider interface {
	// GetStations fetches the station list.
	GetStations(ctx context.Context) ([]Station, error)

	// GetTrips fetches the trip list.
	GetTrips(ctx context.Context) ([]Trip, error)

	// Name returns the provider name for logging.
	Name() string
}

// MetricsRecorder records provider call and cache metrics.
type MetricsRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// HealthRecorder tracks provider success and failure.
type HealthRecorder interface {
	RecordSuccess(name string)
	RecordFailure(name string, err error)
}

// ServiceConfig holds configuration for the traffic service.
type ServiceConfig struct {
	// Provider is the station and trip data source.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Window is the time filter window (default: DefaultWindow).
	Window *Window

	// FlowScale quantizes flow ratios (default: DefaultFlowRatioScale).
	FlowScale *FlowRatioScale

	// TripCacheTTL is how long to cache trip data (default: 1 hour).
	TripCacheTTL time.Duration

	// StationCacheTTL is how long to cache station data (default: 24 hours).
	StationCacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 6 hours).
	StaleIfErrorTTL time.Duration

	// StaleRetryInterval is how long stale data is served before the provider
	// is tried again (default: 1 minute).
	StaleRetryInterval time.Duration

	// Metrics is optional.
	Metrics MetricsRecorder

	// Health is optional.
	Health HealthRecorder
}

// Service serves traffic snapshots with cached provider data.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	window          Window
	flowScale       FlowRatioScale
	tripCacheTTL    time.Duration
	stationCacheTTL time.Duration
	staleIfErrorTTL time.Duration
	staleRetry      time.Duration
	metrics         MetricsRecorder
	health          HealthRecorder

	mu           sync.RWMutex
	tripCache    *cachedTrips
	stationCache *cachedStations
}

type cachedTrips struct {
	trips     []Trip
	fetchedAt time.Time
	expiresAt time.Time
}

type cachedStations struct {
	stations  []Station
	fetchedAt time.Time
	expiresAt time.Time
}

// Query selects what a snapshot covers.
type Query struct {
	// TimeFilter is minutes since midnight or NoFilter.
	TimeFilter int

	// Bounds restricts the returned stations (optional).
	Bounds *Bounds
}

// NewService creates a new traffic service.
func NewService(cfg ServiceConfig) *Service {
	window := DefaultWindow
	if cfg.Window != nil {
		window = *cfg.Window
	}

	flowScale := DefaultFlowRatioScale
	if cfg.FlowScale != nil {
		flowScale = *cfg.FlowScale
	}

	tripCacheTTL := cfg.TripCacheTTL
	if tripCacheTTL == 0 {
		tripCacheTTL = time.Hour
	}

	stationCacheTTL := cfg.StationCacheTTL
	if stationCacheTTL == 0 {
		stationCacheTTL = 24 * time.Hour
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}

	staleRetry := cfg.StaleRetryInterval
	if staleRetry == 0 {
		staleRetry = time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		window:          window,
		flowScale:       flowScale,
		tripCacheTTL:    tripCacheTTL,
		stationCacheTTL: stationCacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		staleRetry:      staleRetry,
		metrics:         cfg.Metrics,
		health:          cfg.Health,
	}
}

// Window returns the configured time filter window.
func (s *Service) Window() Window {
	return s.window
}

// Snapshot computes station traffic for the query.
// The radius domain always spans all stations, even when Bounds narrows the result.
func (s *Service) Snapshot(ctx context.Context, q Query) (*Snapshot, error) {
	if err := ValidateTimeFilter(q.TimeFilter); err != nil {
		return nil, err
	}
	if q.Bounds != nil {
		if err := q.Bounds.Validate(); err != nil {
			return nil, err
		}
	}

	stations, fetchedAt, err := s.getStations(ctx)
	if err != nil {
		return nil, err
	}
	trips, tripsFetchedAt, err := s.getTrips(ctx)
	if err != nil {
		return nil, err
	}
	if tripsFetchedAt.Before(fetchedAt) {
		fetchedAt = tripsFetchedAt
	}

	filtered, err := s.window.Filter(trips, q.TimeFilter)
	if err != nil {
		return nil, err
	}

	withTraffic := ComputeStationTraffic(stations, filtered)
	maxTraffic := MaxTraffic(withTraffic)
	radius := NewRadiusScale(maxTraffic, RadiusRange(q.TimeFilter))

	snapshot := &Snapshot{
		TimeFilter:  q.TimeFilter,
		Window:      s.window,
		Stations:    make([]StationView, 0, len(withTraffic)),
		MaxTraffic:  maxTraffic,
		TripCount:   len(filtered),
		RadiusRange: radius.Range,
		FetchedAt:   fetchedAt,
		Provider:    s.provider.Name(),
	}
	if q.TimeFilter != NoFilter {
		snapshot.TimeLabel = FormatMinutes(q.TimeFilter)
	}

	for i := range withTraffic {
		st := &withTraffic[i]
		if q.Bounds != nil && !q.Bounds.Contains(st) {
			continue
		}
		snapshot.Stations = append(snapshot.Stations, s.view(st, radius))
	}

	return snapshot, nil
}

// StationTraffic returns the traffic view for a single station.
func (s *Service) StationTraffic(ctx context.Context, code string, timeFilter int) (*StationView, error) {
	snapshot, err := s.Snapshot(ctx, Query{TimeFilter: timeFilter})
	if err != nil {
		return nil, err
	}

	for i := range snapshot.Stations {
		if snapshot.Stations[i].Code == code {
			return &snapshot.Stations[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStationNotFound, code)
}

// HourlyProfile returns a station's departures and arrivals per hour of day.
func (s *Service) HourlyProfile(ctx context.Context, code string) (*HourlyProfile, error) {
	if _, err := s.GetStation(ctx, code); err != nil {
		return nil, err
	}

	trips, _, err := s.getTrips(ctx)
	if err != nil {
		return nil, err
	}

	return ComputeHourlyProfile(code, trips), nil
}

// GetStation returns station info by code, without traffic.
func (s *Service) GetStation(ctx context.Context, code string) (*Station, error) {
	stations, _, err := s.getStations(ctx)
	if err != nil {
		return nil, err
	}

	for i := range stations {
		if stations[i].Code == code {
			st := stations[i]
			return &st, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStationNotFound, code)
}

func (s *Service) view(st *Station, radius RadiusScale) StationView {
	v := StationView{
		Station:    *st,
		Radius:     radius.Scale(float64(st.TotalTraffic)),
		FlowBucket: s.flowScale.StationBucket(st),
	}
	if ratio, ok := st.FlowRatio(); ok {
		v.FlowRatio = &ratio
	}
	return v
}

// getStations returns cached stations, refreshing when expired.
func (s *Service) getStations(ctx context.Context) ([]Station, time.Time, error) {
	s.mu.RLock()
	if s.stationCache != nil && time.Now().Before(s.stationCache.expiresAt) {
		stations, fetchedAt := s.stationCache.stations, s.stationCache.fetchedAt
		s.mu.RUnlock()
		s.recordCacheHit("stations")
		return stations, fetchedAt, nil
	}
	s.mu.RUnlock()

	s.recordCacheMiss("stations")
	return s.fetchStations(ctx)
}

// getTrips returns cached trips, refreshing when expired.
func (s *Service) getTrips(ctx context.Context) ([]Trip, time.Time, error) {
	s.mu.RLock()
	if s.tripCache != nil && time.Now().Before(s.tripCache.expiresAt) {
		trips, fetchedAt := s.tripCache.trips, s.tripCache.fetchedAt
		s.mu.RUnlock()
		s.recordCacheHit("trips")
		return trips, fetchedAt, nil
	}
	s.mu.RUnlock()

	s.recordCacheMiss("trips")
	return s.fetchTrips(ctx)
}

// fetchStations fetches stations from the provider and updates the cache.
func (s *Service) fetchStations(ctx context.Context) ([]Station, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache
	if s.stationCache != nil && time.Now().Before(s.stationCache.expiresAt) {
		return s.stationCache.stations, s.stationCache.fetchedAt, nil
	}

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Msg("fetching stations from provider")

	start := time.Now()
	stations, err := s.provider.GetStations(ctx)
	s.recordRequest("stations", time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch stations")

		if errors.Is(err, ErrMalformedData) {
			return nil, time.Time{}, err
		}

		if s.stationCache != nil && time.Now().Before(s.stationCache.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", s.stationCache.fetchedAt).
				Msg("serving stale station data due to provider error")
			s.stationCache.expiresAt = s.staleRetryAt(s.stationCache.fetchedAt)
			return s.stationCache.stations, s.stationCache.fetchedAt, nil
		}

		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	now := time.Now()
	s.stationCache = &cachedStations{
		stations:  stations,
		fetchedAt: now,
		expiresAt: now.Add(s.stationCacheTTL),
	}

	s.logger.Info().
		Int("stations", len(stations)).
		Msg("stations cache refreshed")

	return stations, now, nil
}

// fetchTrips fetches trips from the provider and updates the cache.
func (s *Service) fetchTrips(ctx context.Context) ([]Trip, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache
	if s.tripCache != nil && time.Now().Before(s.tripCache.expiresAt) {
		return s.tripCache.trips, s.tripCache.fetchedAt, nil
	}

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Msg("fetching trips from provider")

	start := time.Now()
	trips, err := s.provider.GetTrips(ctx)
	s.recordRequest("trips", time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch trips")

		if errors.Is(err, ErrMalformedData) {
			return nil, time.Time{}, err
		}

		if s.tripCache != nil && time.Now().Before(s.tripCache.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", s.tripCache.fetchedAt).
				Msg("serving stale trip data due to provider error")
			s.tripCache.expiresAt = s.staleRetryAt(s.tripCache.fetchedAt)
			return s.tripCache.trips, s.tripCache.fetchedAt, nil
		}

		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	now := time.Now()
	s.tripCache = &cachedTrips{
		trips:     trips,
		fetchedAt: now,
		expiresAt: now.Add(s.tripCacheTTL),
	}

	s.logger.Info().
		Int("trips", len(trips)).
		Msg("trips cache refreshed")

	return trips, now, nil
}

// staleRetryAt returns when a stale entry is due for another provider attempt.
// It never extends past the stale-if-error window.
func (s *Service) staleRetryAt(fetchedAt time.Time) time.Time {
	retryAt := time.Now().Add(s.staleRetry)
	if limit := fetchedAt.Add(s.staleIfErrorTTL); retryAt.After(limit) {
		return limit
	}
	return retryAt
}

func (s *Service) recordRequest(operation string, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.RecordRequest(s.provider.Name(), operation, d, err)
	}
	if s.health != nil {
		if err != nil {
			s.health.RecordFailure(s.provider.Name(), err)
		} else {
			s.health.RecordSuccess(s.provider.Name())
		}
	}
}

func (s *Service) recordCacheHit(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(s.provider.Name(), operation)
	}
}

func (s *Service) recordCacheMiss(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(s.provider.Name(), operation)
	}
}

// Warm loads stations and trips into the cache.
func (s *Service) Warm(ctx context.Context) error {
	if _, _, err := s.getStations(ctx); err != nil {
		return err
	}
	_, _, err := s.getTrips(ctx)
	return err
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tripCache = nil
	s.stationCache = nil
}

// Ready reports whether both stations and trips have been loaded at least once.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stationCache != nil && s.tripCache != nil
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := CacheStats{
		Provider: s.provider.Name(),
	}

	if s.tripCache != nil {
		stats.HasTripCache = true
		stats.TripCacheFresh = now.Before(s.tripCache.expiresAt)
		stats.TripCount = len(s.tripCache.trips)
		stats.TripsFetchedAt = s.tripCache.fetchedAt
	}

	if s.stationCache != nil {
		stats.HasStationCache = true
		stats.StationCacheFresh = now.Before(s.stationCache.expiresAt)
		stats.StationCount = len(s.stationCache.stations)
		stats.StationsFetchedAt = s.stationCache.fetchedAt
	}

	return stats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Provider          string
	HasTripCache      bool
	TripCacheFresh    bool
	TripCount         int
	TripsFetchedAt    time.Time
	HasStationCache   bool
	StationCacheFresh bool
	StationCount      int
	StationsFetchedAt time.Time
}
