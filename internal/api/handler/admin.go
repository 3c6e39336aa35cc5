package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/api/middleware"
	"github.com/bluebikes/stationtraffic/internal/api/models"
	"github.com/bluebikes/stationtraffic/internal/api/response"
	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// maxAdminBodyBytes caps the size of admin request bodies.
const maxAdminBodyBytes = 4 << 10

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	traffic *traffic.Service
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *traffic.Service, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{traffic: service, logger: logger}
}

// InvalidateCache handles POST /v1/admin/cache/invalidate.
// With ?warm=true the caches are reloaded before responding.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req models.CacheInvalidateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAdminBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	warm := false
	if raw := r.URL.Query().Get("warm"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "warm", Message: "must be true or false", Code: "INVALID_FORMAT"},
			})
			return
		}
		warm = v
	}

	operator := middleware.GetOperator(r.Context())
	h.traffic.InvalidateCache()

	h.logger.Info().
		Str("operator", operator).
		Str("reason", req.Reason).
		Bool("warm", warm).
		Msg("traffic cache invalidated")

	if warm {
		if err := h.traffic.Warm(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("cache warm after invalidation failed")
			switch {
			case errors.Is(err, traffic.ErrMalformedData):
				response.BadGateway(w, r, "traffic data from the provider could not be parsed")
			case errors.Is(err, traffic.ErrProviderUnavailable):
				response.ServiceUnavailable(w, r, "cache was invalidated but could not be reloaded", unavailableRetryAfter)
			default:
				response.InternalError(w, r, "cache was invalidated but could not be reloaded")
			}
			return
		}
	}

	response.JSON(w, r, http.StatusOK, models.CacheInvalidateResponse{
		Invalidated: true,
		Operator:    operator,
		Time:        models.Timestamp(time.Now()),
	})
}
