package handler_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// fakeProvider serves fixed stations and trips, or the configured error.
type fakeProvider struct {
	mu          sync.Mutex
	stations    []traffic.Station
	trips       []traffic.Trip
	stationsErr error
	tripsErr    error
	calls       int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{stations: testStations(), trips: testTrips()}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) GetStations(_ context.Context) ([]traffic.Station, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.stationsErr != nil {
		return nil, p.stationsErr
	}
	return p.stations, nil
}

func (p *fakeProvider) GetTrips(_ context.Context) ([]traffic.Trip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.tripsErr != nil {
		return nil, p.tripsErr
	}
	return p.trips, nil
}

func (p *fakeProvider) setErrors(stationsErr, tripsErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stationsErr = stationsErr
	p.tripsErr = tripsErr
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// testStations returns three stations; only S1 lies inside downtownBounds.
func testStations() []traffic.Station {
	return []traffic.Station{
		{Code: "S1", Name: "Downtown Crossing", Lat: 42.3600, Lon: -71.0600, Capacity: 19},
		{Code: "S2", Name: "Back Bay", Lat: 42.3500, Lon: -71.0700, Capacity: 15},
		{Code: "S3", Name: "Davis Square", Lat: 42.4000, Lon: -71.1000, Capacity: 11},
	}
}

// testTrips gives all-day totals S1=4 (3 out, 1 in), S2=3, S3=1.
// Around 08:00 only the first two trips match.
func testTrips() []traffic.Trip {
	return []traffic.Trip{
		trip("S1", "S2", "08:00", "08:20"),
		trip("S1", "S2", "08:30", "08:45"),
		trip("S2", "S1", "17:00", "17:30"),
		trip("S1", "S3", "12:00", "12:30"),
	}
}

func trip(from, to, start, end string) traffic.Trip {
	return traffic.Trip{
		StartStationID: from,
		EndStationID:   to,
		StartedAt:      clock(start),
		EndedAt:        clock(end),
	}
}

func clock(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2024-03-05 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService(p traffic.Provider) *traffic.Service {
	return traffic.NewService(traffic.ServiceConfig{
		Provider: p,
		Logger:   zerolog.New(io.Discard),
	})
}
