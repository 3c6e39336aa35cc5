// Package bluebikes fetches Bluebikes station information (GBFS JSON) and
// monthly trip exports (CSV).
package bluebikes

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/provider/resilience"
	"github.com/bluebikes/stationtraffic/internal/traffic"
)

const (
	// ProviderName identifies this traffic provider.
	ProviderName = "bluebikes"

	// DefaultStationsURL is the station information document.
	DefaultStationsURL = "https://dsc106.com/labs/lab07/data/bluebikes-stations.json"

	// DefaultTripsURL is the March 2024 trip export.
	DefaultTripsURL = "https://dsc106.com/labs/lab07/data/bluebikes-traffic-2024-03.csv"
)

// Timestamp layouts accepted in trip exports, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	time.RFC3339,
	"15:04:05",
	"15:04",
}

// ClientConfig holds configuration for the Bluebikes client.
type ClientConfig struct {
	// StationsURL is the GBFS station information URL (optional).
	StationsURL string

	// TripsURL is the trip CSV URL (optional).
	TripsURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches station and trip data over HTTP.
type Client struct {
	stationsURL string
	tripsURL    string
	httpClient  *resilience.Client
	logger      zerolog.Logger
}

// NewClient creates a new Bluebikes client.
func NewClient(cfg ClientConfig) *Client {
	stationsURL := cfg.StationsURL
	if stationsURL == "" {
		stationsURL = DefaultStationsURL
	}

	tripsURL := cfg.TripsURL
	if tripsURL == "" {
		tripsURL = DefaultTripsURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		stationsURL: stationsURL,
		tripsURL:    tripsURL,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// HTTPClient returns the underlying resilient client.
func (c *Client) HTTPClient() *resilience.Client {
	return c.httpClient
}

// GetStations fetches the station list.
func (c *Client) GetStations(ctx context.Context) ([]traffic.Station, error) {
	body, err := c.get(ctx, c.stationsURL, "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return DecodeStations(body)
}

// GetTrips fetches and parses the trip export.
func (c *Client) GetTrips(ctx context.Context) ([]traffic.Trip, error) {
	body, err := c.get(ctx, c.tripsURL, "text/csv")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	trips, err := DecodeTrips(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("trips", len(trips)).
		Str("url", c.tripsURL).
		Msg("trip export parsed")

	return trips, nil
}

func (c *Client) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// DecodeStations parses a GBFS station information document.
func DecodeStations(r io.Reader) ([]traffic.Station, error) {
	var doc stationsResponse
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding stations: %w", traffic.ErrMalformedData, err)
	}

	stations := make([]traffic.Station, 0, len(doc.Data.Stations))
	seen := make(map[string]struct{}, len(doc.Data.Stations))
	for i, s := range doc.Data.Stations {
		if s.ShortName == "" {
			return nil, fmt.Errorf("%w: station %d has no short_name", traffic.ErrMalformedData, i)
		}
		if _, dup := seen[s.ShortName]; dup {
			return nil, fmt.Errorf("%w: duplicate station %q", traffic.ErrMalformedData, s.ShortName)
		}
		seen[s.ShortName] = struct{}{}

		lon, err := s.Lon.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: station %q lon: %w", traffic.ErrMalformedData, s.ShortName, err)
		}
		lat, err := s.Lat.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: station %q lat: %w", traffic.ErrMalformedData, s.ShortName, err)
		}

		stations = append(stations, traffic.Station{
			Code:     s.ShortName,
			Name:     s.Name,
			Lon:      lon,
			Lat:      lat,
			Capacity: s.Capacity,
		})
	}

	return stations, nil
}

// DecodeTrips parses a trip export. The header row selects columns; either
// started_at/ended_at or start_time/end_time must be present.
func DecodeTrips(r io.Reader) ([]traffic.Trip, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty trip export", traffic.ErrMalformedData)
		}
		return nil, fmt.Errorf("%w: reading header: %w", traffic.ErrMalformedData, err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var trips []traffic.Trip
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", traffic.ErrMalformedData, err)
		}
		line, _ := reader.FieldPos(0)

		trip, err := cols.trip(record)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", traffic.ErrMalformedData, line, err)
		}
		trips = append(trips, trip)
	}

	return trips, nil
}

type columns struct {
	rideID, startStation, endStation, startedAt, endedAt int
}

func resolveColumns(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	lookup := func(names ...string) int {
		for _, n := range names {
			if i, ok := index[n]; ok {
				return i
			}
		}
		return -1
	}

	cols := columns{
		rideID:       lookup("ride_id"),
		startStation: lookup("start_station_id"),
		endStation:   lookup("end_station_id"),
		startedAt:    lookup("started_at", "start_time"),
		endedAt:      lookup("ended_at", "end_time"),
	}

	var missing []string
	if cols.startStation < 0 {
		missing = append(missing, "start_station_id")
	}
	if cols.endStation < 0 {
		missing = append(missing, "end_station_id")
	}
	if cols.startedAt < 0 {
		missing = append(missing, "started_at")
	}
	if cols.endedAt < 0 {
		missing = append(missing, "ended_at")
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: missing columns %s", traffic.ErrMalformedData, strings.Join(missing, ", "))
	}

	return cols, nil
}

func (c columns) trip(record []string) (traffic.Trip, error) {
	startedAt, err := parseTimestamp(record[c.startedAt])
	if err != nil {
		return traffic.Trip{}, fmt.Errorf("started_at: %w", err)
	}
	endedAt, err := parseTimestamp(record[c.endedAt])
	if err != nil {
		return traffic.Trip{}, fmt.Errorf("ended_at: %w", err)
	}

	trip := traffic.Trip{
		StartStationID: strings.TrimSpace(record[c.startStation]),
		EndStationID:   strings.TrimSpace(record[c.endStation]),
		StartedAt:      startedAt,
		EndedAt:        endedAt,
	}
	if c.rideID >= 0 {
		trip.RideID = record[c.rideID]
	}
	return trip, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// GBFS response structures.

type stationsResponse struct {
	Data struct {
		Stations []gbfsStation `json:"stations"`
	} `json:"data"`
}

type gbfsStation struct {
	StationID string      `json:"station_id"`
	ShortName string      `json:"short_name"`
	Name      string      `json:"name"`
	Lon       json.Number `json:"lon"`
	Lat       json.Number `json:"lat"`
	Capacity  int         `json:"capacity"`
}
