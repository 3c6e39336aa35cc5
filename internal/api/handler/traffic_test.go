package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebikes/stationtraffic/internal/api/handler"
	"github.com/bluebikes/stationtraffic/internal/api/models"
	"github.com/bluebikes/stationtraffic/internal/traffic"
)

func newTrafficRouter(p traffic.Provider) http.Handler {
	h := handler.NewTrafficHandler(newTestService(p), zerolog.New(io.Discard))
	r := chi.NewRouter()
	r.Get("/v1/stations/traffic", h.GetSnapshot)
	r.Get("/v1/stations/{code}/traffic", h.GetStationTraffic)
	r.Get("/v1/stations/{code}/hourly", h.GetHourlyProfile)
	return r
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func stationByCode(t *testing.T, stations []models.StationTraffic, code string) models.StationTraffic {
	t.Helper()
	for _, s := range stations {
		if s.Code == code {
			return s
		}
	}
	t.Fatalf("station %s not in response", code)
	return models.StationTraffic{}
}

func TestGetSnapshot_AllDay(t *testing.T) {
	rec := serve(t, newTrafficRouter(newFakeProvider()), "/v1/stations/traffic")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	var snap models.TrafficSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))

	assert.Equal(t, traffic.NoFilter, snap.TimeFilter)
	assert.Empty(t, snap.TimeLabel)
	assert.Equal(t, 4, snap.TripCount)
	assert.Equal(t, 4, snap.MaxTraffic)
	assert.Equal(t, models.RadiusRange{Min: 0, Max: 25}, snap.RadiusRange)
	assert.Equal(t, models.TrafficWindow{ToleranceMinutes: 60, Basis: "START_OR_END"}, snap.Window)
	assert.Equal(t, "fake", snap.Provider)
	require.Len(t, snap.Stations, 3)

	// Input order is preserved.
	assert.Equal(t, "S1", snap.Stations[0].Code)
	assert.Equal(t, "S2", snap.Stations[1].Code)
	assert.Equal(t, "S3", snap.Stations[2].Code)

	s1 := snap.Stations[0]
	assert.Equal(t, 3, s1.Departures)
	assert.Equal(t, 1, s1.Arrivals)
	assert.Equal(t, 4, s1.TotalTraffic)
	assert.InDelta(t, 25.0, s1.Radius, 1e-9)
	require.NotNil(t, s1.FlowRatio)
	assert.InDelta(t, 0.75, *s1.FlowRatio, 1e-9)
	assert.Equal(t, 1.0, s1.FlowBucket)
	assert.Equal(t, "mostly_departures", s1.FlowLabel)

	s3 := snap.Stations[2]
	assert.Equal(t, 1, s3.TotalTraffic)
	assert.InDelta(t, 12.5, s3.Radius, 1e-9)
	assert.Equal(t, 0.0, s3.FlowBucket)
	assert.Equal(t, "mostly_arrivals", s3.FlowLabel)
}

func TestGetSnapshot_TimeFilter(t *testing.T) {
	router := newTrafficRouter(newFakeProvider())

	for _, param := range []string{"08:00", "480"} {
		t.Run(param, func(t *testing.T) {
			rec := serve(t, router, "/v1/stations/traffic?time="+param)
			require.Equal(t, http.StatusOK, rec.Code)

			var snap models.TrafficSnapshot
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))

			assert.Equal(t, 480, snap.TimeFilter)
			assert.Equal(t, "8:00 AM", snap.TimeLabel)
			assert.Equal(t, 2, snap.TripCount)
			assert.Equal(t, 2, snap.MaxTraffic)
			assert.Equal(t, models.RadiusRange{Min: 3, Max: 50}, snap.RadiusRange)

			s1 := stationByCode(t, snap.Stations, "S1")
			assert.Equal(t, 2, s1.Departures)
			assert.InDelta(t, 50.0, s1.Radius, 1e-9)

			s2 := stationByCode(t, snap.Stations, "S2")
			assert.Equal(t, 2, s2.Arrivals)
			assert.Equal(t, "mostly_arrivals", s2.FlowLabel)

			s3 := stationByCode(t, snap.Stations, "S3")
			assert.Equal(t, 0, s3.TotalTraffic)
			assert.InDelta(t, 3.0, s3.Radius, 1e-9)
			assert.Nil(t, s3.FlowRatio)
			assert.Equal(t, 0.5, s3.FlowBucket)
			assert.Equal(t, "balanced", s3.FlowLabel)
		})
	}
}

func TestGetSnapshot_AnyTime(t *testing.T) {
	router := newTrafficRouter(newFakeProvider())

	for _, param := range []string{"-1", "any"} {
		rec := serve(t, router, "/v1/stations/traffic?time="+param)
		require.Equal(t, http.StatusOK, rec.Code)

		var snap models.TrafficSnapshot
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
		assert.Equal(t, traffic.NoFilter, snap.TimeFilter)
		assert.Equal(t, 4, snap.TripCount)
	}
}

func TestGetSnapshot_Bounds(t *testing.T) {
	router := newTrafficRouter(newFakeProvider())

	rec := serve(t, router, "/v1/stations/traffic?minLat=42.355&minLon=-71.065&maxLat=42.37&maxLon=-71.05")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.TrafficSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))

	require.Len(t, snap.Stations, 1)
	assert.Equal(t, "S1", snap.Stations[0].Code)
	require.NotNil(t, snap.Bounds)
	assert.Equal(t, 42.355, snap.Bounds.MinLat)

	// Radii stay relative to every station, not only the visible ones.
	assert.Equal(t, 4, snap.MaxTraffic)
	assert.InDelta(t, 25.0, snap.Stations[0].Radius, 1e-9)
}

func TestGetSnapshot_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		fields []string
	}{
		{name: "hour out of range", query: "time=25:00", fields: []string{"time"}},
		{name: "minutes out of range", query: "time=1440", fields: []string{"time"}},
		{name: "negative minutes", query: "time=-5", fields: []string{"time"}},
		{name: "not a time", query: "time=noon", fields: []string{"time"}},
		{name: "partial bounds", query: "minLat=42.3&maxLat=42.4", fields: []string{"minLon", "maxLon"}},
		{name: "non-numeric bound", query: "minLat=x&minLon=-71.1&maxLat=42.4&maxLon=-71", fields: []string{"minLat"}},
		{name: "inverted latitude", query: "minLat=42.5&minLon=-71.1&maxLat=42.4&maxLon=-71", fields: []string{"bounds"}},
		{name: "latitude out of range", query: "minLat=-91&minLon=-71.1&maxLat=42.4&maxLon=-71", fields: []string{"bounds"}},
		{name: "NaN bound", query: "minLat=NaN&minLon=-72&maxLat=43&maxLon=-70", fields: []string{"bounds"}},
	}

	router := newTrafficRouter(newFakeProvider())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, router, "/v1/stations/traffic?"+tt.query)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

			p := decodeProblem(t, rec)
			assert.Equal(t, models.ProblemTypeValidation, p.Type)

			var got []string
			for _, fe := range p.Errors {
				got = append(got, fe.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestGetSnapshot_ProviderErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		retryHeader string
	}{
		{
			name:        "provider down",
			err:         errors.New("connection refused"),
			wantStatus:  http.StatusServiceUnavailable,
			wantType:    models.ProblemTypeUnavailable,
			retryHeader: "60",
		},
		{
			name:       "malformed data",
			err:        fmt.Errorf("%w: missing columns ended_at", traffic.ErrMalformedData),
			wantStatus: http.StatusBadGateway,
			wantType:   models.ProblemTypeBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			p.setErrors(nil, tt.err)

			rec := serve(t, newTrafficRouter(p), "/v1/stations/traffic")
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.retryHeader, rec.Header().Get("Retry-After"))
			assert.Equal(t, tt.wantType, decodeProblem(t, rec).Type)
		})
	}
}

func TestGetStationTraffic(t *testing.T) {
	router := newTrafficRouter(newFakeProvider())

	rec := serve(t, router, "/v1/stations/S2/traffic?time=17:15")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.StationTrafficResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, 1035, resp.TimeFilter)
	assert.Equal(t, "5:15 PM", resp.TimeLabel)
	assert.Equal(t, "S2", resp.Station.Code)
	assert.Equal(t, 1, resp.Station.Departures)
	assert.Equal(t, 0, resp.Station.Arrivals)
	assert.Equal(t, "mostly_departures", resp.Station.FlowLabel)
}

func TestGetStationTraffic_NotFound(t *testing.T) {
	rec := serve(t, newTrafficRouter(newFakeProvider()), "/v1/stations/NOPE/traffic")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ProblemTypeNotFound, decodeProblem(t, rec).Type)
}

func TestGetStationTraffic_InvalidTime(t *testing.T) {
	rec := serve(t, newTrafficRouter(newFakeProvider()), "/v1/stations/S1/traffic?time=24:00")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	p := decodeProblem(t, rec)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "INVALID_TIME", p.Errors[0].Code)
}

func TestGetHourlyProfile(t *testing.T) {
	rec := serve(t, newTrafficRouter(newFakeProvider()), "/v1/stations/S1/hourly")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=900", rec.Header().Get("Cache-Control"))

	var profile models.HourlyProfile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))

	assert.Equal(t, "S1", profile.Code)
	assert.Equal(t, 3, profile.Departures)
	assert.Equal(t, 1, profile.Arrivals)
	assert.Equal(t, 8, profile.PeakHour)
	require.Len(t, profile.Hours, 24)
	assert.Equal(t, 2, profile.Hours[8].Departures)
	assert.Equal(t, "8:00 AM", profile.Hours[8].Label)
	assert.Equal(t, 1, profile.Hours[17].Arrivals)
	assert.Equal(t, "12:00 AM", profile.Hours[0].Label)
}

func TestGetHourlyProfile_NotFound(t *testing.T) {
	rec := serve(t, newTrafficRouter(newFakeProvider()), "/v1/stations/NOPE/hourly")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrafficHandler_UsesCache(t *testing.T) {
	p := newFakeProvider()
	router := newTrafficRouter(p)

	serve(t, router, "/v1/stations/traffic")
	calls := p.callCount()
	serve(t, router, "/v1/stations/traffic?time=08:00")
	serve(t, router, "/v1/stations/S1/hourly")

	assert.Equal(t, calls, p.callCount())
}
