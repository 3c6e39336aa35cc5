// Package traffic aggregates bike-share trips into per-station traffic counts
// and filters trips by time of day.
package traffic

import (
	"errors"
	"time"
)

// Traffic errors.
var (
	ErrProviderUnavailable = errors.New("traffic provider unavailable")
	ErrMalformedData       = errors.New("malformed traffic data")
	ErrStationNotFound     = errors.New("station not found")
	ErrInvalidTimeFilter   = errors.New("invalid time filter")
	ErrInvalidBounds       = errors.New("invalid bounds")
)

// NoFilter is the time filter value meaning "any time of day".
const NoFilter = -1

// MinutesPerDay is the number of minutes in a wall-clock day.
const MinutesPerDay = 24 * 60

// Station is a bike-share dock location.
type Station struct {
	// Code is the station short code (e.g., "A32000").
	Code string

	// Name is the display name.
	Name string

	// Lon/Lat for geolocation.
	Lon float64
	Lat float64

	// Capacity is the number of docks (0 if unknown).
	Capacity int

	// Arrivals is the number of trips ending at this station.
	Arrivals int

	// Departures is the number of trips starting at this station.
	Departures int

	// TotalTraffic is always Arrivals + Departures.
	TotalTraffic int
}

// FlowRatio returns departures / total traffic.
// The second return value is false when the station saw no traffic.
func (s *Station) FlowRatio() (float64, bool) {
	if s.TotalTraffic == 0 {
		return 0, false
	}
	return float64(s.Departures) / float64(s.TotalTraffic), true
}

// Trip is a single rental event.
type Trip struct {
	// RideID is the upstream ride identifier (may be empty).
	RideID string

	// StartStationID and EndStationID are station short codes.
	// They are not required to match a known station.
	StartStationID string
	EndStationID   string

	// StartedAt and EndedAt are wall-clock times; no timezone conversion is applied.
	StartedAt time.Time
	EndedAt   time.Time
}

// StartedMinutes returns the start time as minutes since midnight.
func (t *Trip) StartedMinutes() int {
	return MinutesSinceMidnight(t.StartedAt)
}

// EndedMinutes returns the end time as minutes since midnight.
func (t *Trip) EndedMinutes() int {
	return MinutesSinceMidnight(t.EndedAt)
}

// StationView is a station with the values a map renderer needs.
type StationView struct {
	Station

	// Radius is the marker radius in pixels.
	Radius float64

	// FlowRatio is departures / total traffic; nil when the station saw no traffic.
	FlowRatio *float64

	// FlowBucket is the quantized flow ratio (0, 0.5 or 1).
	FlowBucket float64
}

// Snapshot is the traffic picture for one time filter.
type Snapshot struct {
	// TimeFilter is the minutes-since-midnight filter, or NoFilter.
	TimeFilter int

	// TimeLabel is the formatted filter ("3:04 PM"), empty for NoFilter.
	TimeLabel string

	// Window is the tolerance window applied.
	Window Window

	// Stations in input order, restricted to the query bounds when given.
	Stations []StationView

	// MaxTraffic is the highest TotalTraffic across all stations.
	MaxTraffic int

	// TripCount is the number of trips that passed the time filter.
	TripCount int

	// RadiusRange is the pixel range used for Radius.
	RadiusRange Range

	// FetchedAt is when the underlying data was loaded.
	FetchedAt time.Time

	// Provider identifies the data source.
	Provider string
}

// HourBucket holds traffic counts for one hour of the day.
type HourBucket struct {
	Hour       int
	Departures int
	Arrivals   int
}

// HourlyProfile is a station's traffic split by hour of day.
type HourlyProfile struct {
	Code       string
	Hours      [24]HourBucket
	Departures int
	Arrivals   int
}

// PeakHour returns the hour with the highest combined traffic.
// Ties resolve to the earliest hour.
func (p *HourlyProfile) PeakHour() int {
	peak := 0
	for h := 1; h < len(p.Hours); h++ {
		if p.Hours[h].Departures+p.Hours[h].Arrivals > p.Hours[peak].Departures+p.Hours[peak].Arrivals {
			peak = h
		}
	}
	return peak
}
