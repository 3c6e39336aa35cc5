package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// Import errors.
var (
	ErrEmptyDataset = errors.New("dataset is empty")
)

// ImportRecorder records import outcomes. Satisfied by middleware.ProviderMetrics.
type ImportRecorder interface {
	RecordImport(source string, trips int, err error)
}

// ImportJob copies stations and trips from a source provider into a repository.
type ImportJob struct {
	config   ImportConfig
	source   traffic.Provider
	repo     traffic.Repository
	recorder ImportRecorder
	logger   zerolog.Logger

	// Serializes runs so two triggers never interleave their saves.
	runMu sync.Mutex

	metrics *ImportMetrics
}

// ImportMetrics tracks import job statistics.
type ImportMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	HealthChecks   int64

	// Last run
	LastRunID       string
	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastError       string
	LastStations    int
	LastTrips       int
}

// ImportJobConfig holds configuration for creating an ImportJob.
type ImportJobConfig struct {
	Config     ImportConfig
	Source     traffic.Provider
	Repository traffic.Repository
	Recorder   ImportRecorder
	Logger     zerolog.Logger
}

// NewImportJob creates a new import job.
func NewImportJob(cfg ImportJobConfig) *ImportJob {
	config := cfg.Config.withDefaults()
	if config.SourceName == "" && cfg.Source != nil {
		config.SourceName = cfg.Source.Name()
	}

	return &ImportJob{
		config:   config,
		source:   cfg.Source,
		repo:     cfg.Repository,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		metrics:  &ImportMetrics{},
	}
}

// ImportResult contains the result of an import run.
type ImportResult struct {
	RunID     string
	Source    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Stations  int
	Trips     int

	// UnknownStationTrips counts trips whose start or end station is not in
	// the station list. They are stored; aggregation ignores them.
	UnknownStationTrips int
}

// Run fetches stations and trips in parallel and replaces the stored dataset.
// Nothing is saved unless both fetches succeed.
func (j *ImportJob) Run(ctx context.Context) (*ImportResult, error) {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result := &ImportResult{
		RunID:     uuid.NewString(),
		Source:    j.config.SourceName,
		StartTime: time.Now(),
	}

	logger := j.logger.With().
		Str("run_id", result.RunID).
		Str("source", result.Source).
		Logger()
	logger.Info().Msg("starting dataset import")

	err := j.run(ctx, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.updateMetrics(result, err)
	if j.recorder != nil {
		j.recorder.RecordImport(result.Source, result.Trips, err)
	}

	if err != nil {
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("dataset import failed")
		return result, err
	}

	logger.Info().
		Dur("duration", result.Duration).
		Int("stations", result.Stations).
		Int("trips", result.Trips).
		Int("unknown_station_trips", result.UnknownStationTrips).
		Msg("dataset import completed")

	return result, nil
}

func (j *ImportJob) run(ctx context.Context, result *ImportResult) error {
	var (
		wg                    sync.WaitGroup
		stations              []traffic.Station
		trips                 []traffic.Trip
		stationsErr, tripsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stations, stationsErr = j.source.GetStations(ctx)
	}()
	go func() {
		defer wg.Done()
		trips, tripsErr = j.source.GetTrips(ctx)
	}()
	wg.Wait()

	if stationsErr != nil {
		return fmt.Errorf("fetch stations: %w", stationsErr)
	}
	if tripsErr != nil {
		return fmt.Errorf("fetch trips: %w", tripsErr)
	}

	if len(stations) == 0 {
		return fmt.Errorf("%w: no stations", ErrEmptyDataset)
	}
	if len(trips) == 0 && !j.config.AllowEmptyTrips {
		return fmt.Errorf("%w: no trips", ErrEmptyDataset)
	}

	result.Stations = len(stations)
	result.Trips = len(trips)
	result.UnknownStationTrips = countUnknownStationTrips(stations, trips)

	if err := j.repo.SaveDataset(ctx, result.Source, stations, trips); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}

// Check verifies the source can serve a non-empty station list.
func (j *ImportJob) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.CheckTimeout)
	defer cancel()

	j.metrics.mu.Lock()
	j.metrics.HealthChecks++
	j.metrics.mu.Unlock()

	stations, err := j.source.GetStations(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if len(stations) == 0 {
		return fmt.Errorf("health check: %w: no stations", ErrEmptyDataset)
	}
	return nil
}

// Interval returns the configured ticker interval.
func (j *ImportJob) Interval() time.Duration {
	return j.config.Interval
}

func countUnknownStationTrips(stations []traffic.Station, trips []traffic.Trip) int {
	known := make(map[string]struct{}, len(stations))
	for i := range stations {
		known[stations[i].Code] = struct{}{}
	}

	unknown := 0
	for i := range trips {
		_, startOK := known[trips[i].StartStationID]
		_, endOK := known[trips[i].EndStationID]
		if !startOK || !endOK {
			unknown++
		}
	}
	return unknown
}

func (j *ImportJob) updateMetrics(result *ImportResult, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.LastRunID = result.RunID
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	if err != nil {
		j.metrics.FailedRuns++
		j.metrics.LastError = err.Error()
		return
	}
	j.metrics.SuccessfulRuns++
	j.metrics.LastError = ""
	j.metrics.LastStations = result.Stations
	j.metrics.LastTrips = result.Trips
}

// GetMetrics returns a copy of the current metrics.
func (j *ImportJob) GetMetrics() ImportMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return ImportMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		SuccessfulRuns:  j.metrics.SuccessfulRuns,
		FailedRuns:      j.metrics.FailedRuns,
		HealthChecks:    j.metrics.HealthChecks,
		LastRunID:       j.metrics.LastRunID,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		LastError:       j.metrics.LastError,
		LastStations:    j.metrics.LastStations,
		LastTrips:       j.metrics.LastTrips,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *ImportJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful_runs":   m.SuccessfulRuns,
		"failed_runs":       m.FailedRuns,
		"health_checks":     m.HealthChecks,
		"last_run_id":       m.LastRunID,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"last_error":        m.LastError,
		"last_stations":     m.LastStations,
		"last_trips":        m.LastTrips,
	}
}
