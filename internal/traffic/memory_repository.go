package traffic

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process deployments.
type InMemoryRepository struct {
	mu       sync.RWMutex
	stations []Station
	trips    []Trip
	info     *DatasetInfo
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// SaveDataset replaces the stored stations and trips.
func (r *InMemoryRepository) SaveDataset(_ context.Context, source string, stations []Station, trips []Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stations = append([]Station(nil), stations...)
	r.trips = append([]Trip(nil), trips...)
	r.info = &DatasetInfo{
		Source:       source,
		StationCount: len(stations),
		TripCount:    len(trips),
		ImportedAt:   time.Now(),
	}
	return nil
}

// ListStations returns a copy of the stored stations.
func (r *InMemoryRepository) ListStations(_ context.Context) ([]Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Station(nil), r.stations...), nil
}

// ListTrips returns a copy of the stored trips.
func (r *InMemoryRepository) ListTrips(_ context.Context) ([]Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Trip(nil), r.trips...), nil
}

// DatasetInfo returns metadata for the stored dataset.
func (r *InMemoryRepository) DatasetInfo(_ context.Context) (*DatasetInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.info == nil {
		return nil, ErrNoDataset
	}
	cpy := *r.info
	return &cpy, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
