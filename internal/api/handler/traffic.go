package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/api/models"
	"github.com/bluebikes/stationtraffic/internal/api/response"
	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// Cache lifetimes for traffic responses.
const (
	snapshotMaxAge = 5 * time.Minute
	profileMaxAge  = 15 * time.Minute

	// unavailableRetryAfter is sent with 503s while the provider is down.
	unavailableRetryAfter = time.Minute
)

// TrafficHandler handles station traffic endpoints.
type TrafficHandler struct {
	service *traffic.Service
	logger  zerolog.Logger
}

// NewTrafficHandler creates a new TrafficHandler.
func NewTrafficHandler(service *traffic.Service, logger zerolog.Logger) *TrafficHandler {
	return &TrafficHandler{service: service, logger: logger}
}

// GetSnapshot handles GET /v1/stations/traffic - traffic for all stations,
// optionally filtered by time of day and restricted to a viewport.
func (h *TrafficHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	timeFilter, fe := parseTimeParam(q.Get("time"))
	if fe != nil {
		fieldErrors = append(fieldErrors, *fe)
	}
	bounds, boundErrors := parseBounds(q.Get("minLat"), q.Get("minLon"), q.Get("maxLat"), q.Get("maxLon"))
	fieldErrors = append(fieldErrors, boundErrors...)

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	snapshot, err := h.service.Snapshot(r.Context(), traffic.Query{
		TimeFilter: timeFilter,
		Bounds:     bounds,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := models.TrafficSnapshot{
		TimeFilter: snapshot.TimeFilter,
		TimeLabel:  snapshot.TimeLabel,
		Window:     toWindow(snapshot.Window),
		TripCount:  snapshot.TripCount,
		MaxTraffic: snapshot.MaxTraffic,
		RadiusRange: models.RadiusRange{
			Min: snapshot.RadiusRange.Min,
			Max: snapshot.RadiusRange.Max,
		},
		Stations:  make([]models.StationTraffic, 0, len(snapshot.Stations)),
		Provider:  snapshot.Provider,
		FetchedAt: models.Timestamp(snapshot.FetchedAt),
	}
	if bounds != nil {
		out.Bounds = &models.GeoBox{
			MinLat: bounds.MinLat,
			MinLon: bounds.MinLon,
			MaxLat: bounds.MaxLat,
			MaxLon: bounds.MaxLon,
		}
	}
	for i := range snapshot.Stations {
		out.Stations = append(out.Stations, toStationTraffic(&snapshot.Stations[i]))
	}

	response.Cacheable(w, snapshotMaxAge, snapshot.FetchedAt)
	response.JSON(w, r, http.StatusOK, out)
}

// GetStationTraffic handles GET /v1/stations/{code}/traffic - one station's traffic.
func (h *TrafficHandler) GetStationTraffic(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		response.BadRequest(w, r, "station code is required", nil)
		return
	}

	timeFilter, fe := parseTimeParam(r.URL.Query().Get("time"))
	if fe != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{*fe})
		return
	}

	view, err := h.service.StationTraffic(r.Context(), code, timeFilter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := models.StationTrafficResponse{
		TimeFilter: timeFilter,
		Window:     toWindow(h.service.Window()),
		Station:    toStationTraffic(view),
	}
	if timeFilter != traffic.NoFilter {
		out.TimeLabel = traffic.FormatMinutes(timeFilter)
	}

	response.Cacheable(w, snapshotMaxAge, time.Time{})
	response.JSON(w, r, http.StatusOK, out)
}

// GetHourlyProfile handles GET /v1/stations/{code}/hourly - departures and
// arrivals per hour of day.
func (h *TrafficHandler) GetHourlyProfile(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		response.BadRequest(w, r, "station code is required", nil)
		return
	}

	profile, err := h.service.HourlyProfile(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := models.HourlyProfile{
		Code:       profile.Code,
		Departures: profile.Departures,
		Arrivals:   profile.Arrivals,
		PeakHour:   profile.PeakHour(),
		Hours:      make([]models.HourlyTraffic, 0, len(profile.Hours)),
	}
	for _, b := range profile.Hours {
		out.Hours = append(out.Hours, models.HourlyTraffic{
			Hour:       b.Hour,
			Label:      traffic.FormatMinutes(b.Hour * 60),
			Departures: b.Departures,
			Arrivals:   b.Arrivals,
		})
	}

	response.Cacheable(w, profileMaxAge, time.Time{})
	response.JSON(w, r, http.StatusOK, out)
}

// writeError maps traffic errors onto Problem responses.
func (h *TrafficHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, traffic.ErrInvalidTimeFilter):
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "time", Message: err.Error(), Code: "OUT_OF_RANGE"},
		})
	case errors.Is(err, traffic.ErrInvalidBounds):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, traffic.ErrStationNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, traffic.ErrMalformedData):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("traffic data is malformed")
		response.BadGateway(w, r, "traffic data from the provider could not be parsed")
	case errors.Is(err, traffic.ErrProviderUnavailable):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("traffic provider unavailable")
		response.ServiceUnavailable(w, r, "traffic data is temporarily unavailable", unavailableRetryAfter)
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("traffic request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func parseTimeParam(raw string) (int, *models.FieldError) {
	minutes, err := traffic.ParseTimeFilter(raw)
	if err != nil {
		return traffic.NoFilter, &models.FieldError{
			Field:   "time",
			Message: "must be HH:MM, minutes since midnight (0-1439), or -1 for any time",
			Code:    "INVALID_TIME",
		}
	}
	return minutes, nil
}

// parseBounds returns nil bounds when no bound is given. Either all four
// bounds are set or none.
func parseBounds(minLat, minLon, maxLat, maxLon string) (*traffic.Bounds, []models.FieldError) {
	raw := []struct {
		field string
		value string
	}{
		{"minLat", minLat},
		{"minLon", minLon},
		{"maxLat", maxLat},
		{"maxLon", maxLon},
	}

	given := 0
	for _, p := range raw {
		if strings.TrimSpace(p.value) != "" {
			given++
		}
	}
	if given == 0 {
		return nil, nil
	}

	var fieldErrors []models.FieldError
	values := make([]float64, len(raw))
	for i, p := range raw {
		v := strings.TrimSpace(p.value)
		if v == "" {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   p.field,
				Message: "required when any bound is given",
				Code:    "REQUIRED",
			})
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   p.field,
				Message: "must be a number",
				Code:    "INVALID_FORMAT",
			})
			continue
		}
		values[i] = f
	}
	if len(fieldErrors) > 0 {
		return nil, fieldErrors
	}

	b := &traffic.Bounds{MinLat: values[0], MinLon: values[1], MaxLat: values[2], MaxLon: values[3]}
	if err := b.Validate(); err != nil {
		return nil, []models.FieldError{{Field: "bounds", Message: err.Error(), Code: "OUT_OF_RANGE"}}
	}
	return b, nil
}

func toWindow(w traffic.Window) models.TrafficWindow {
	return models.TrafficWindow{
		ToleranceMinutes: w.Tolerance,
		Basis:            string(w.Basis),
	}
}

func toStationTraffic(v *traffic.StationView) models.StationTraffic {
	return models.StationTraffic{
		Code:         v.Code,
		Name:         v.Name,
		Lat:          v.Lat,
		Lon:          v.Lon,
		Capacity:     v.Capacity,
		Arrivals:     v.Arrivals,
		Departures:   v.Departures,
		TotalTraffic: v.TotalTraffic,
		Radius:       v.Radius,
		FlowRatio:    v.FlowRatio,
		FlowBucket:   v.FlowBucket,
		FlowLabel:    traffic.FlowLabel(v.FlowBucket),
	}
}
