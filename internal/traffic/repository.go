package traffic

import (
	"context"
	"errors"
	"time"
)

// ErrNoDataset is returned when no dataset has been imported yet.
var ErrNoDataset = errors.New("no dataset imported")

// DatasetInfo describes the stored dataset.
type DatasetInfo struct {
	// Source identifies where the dataset was imported from.
	Source string

	// StationCount and TripCount are the stored record counts.
	StationCount int
	TripCount    int

	// ImportedAt is when the dataset was saved.
	ImportedAt time.Time
}

// Repository defines the interface for station and trip persistence.
type Repository interface {
	// SaveDataset atomically replaces all stations and trips.
	SaveDataset(ctx context.Context, source string, stations []Station, trips []Trip) error

	// ListStations returns all stations in insertion order.
	ListStations(ctx context.Context) ([]Station, error)

	// ListTrips returns all trips.
	ListTrips(ctx context.Context) ([]Trip, error)

	// DatasetInfo returns metadata for the stored dataset.
	// Returns ErrNoDataset if nothing has been saved.
	DatasetInfo(ctx context.Context) (*DatasetInfo, error)
}

// RepositoryProvider serves stations and trips from a Repository.
type RepositoryProvider struct {
	repo Repository
	name string
}

// NewRepositoryProvider creates a Provider backed by repo.
func NewRepositoryProvider(repo Repository, name string) *RepositoryProvider {
	if name == "" {
		name = "repository"
	}
	return &RepositoryProvider{repo: repo, name: name}
}

// Name returns the provider name.
func (p *RepositoryProvider) Name() string {
	return p.name
}

// GetStations returns stored stations.
func (p *RepositoryProvider) GetStations(ctx context.Context) ([]Station, error) {
	if _, err := p.repo.DatasetInfo(ctx); err != nil {
		return nil, err
	}
	return p.repo.ListStations(ctx)
}

// GetTrips returns stored trips.
func (p *RepositoryProvider) GetTrips(ctx context.Context) ([]Trip, error) {
	if _, err := p.repo.DatasetInfo(ctx); err != nil {
		return nil, err
	}
	return p.repo.ListTrips(ctx)
}

// Ensure RepositoryProvider implements Provider interface.
var _ Provider = (*RepositoryProvider)(nil)
