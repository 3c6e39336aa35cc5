package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bluebikes/stationtraffic/internal/api/middleware"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	return reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, []metricdata.DataPoint[int64]) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, sum.DataPoints
		}
	}
	return 0, nil
}

func TestNewMetrics(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_Middleware_Success(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	total, _ := collectSum(t, reader, "http.server.request.total")
	assert.Equal(t, int64(1), total)
}

func TestMetrics_Middleware_LabelsByRoutePattern(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/stations/{code}/traffic", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, code := range []string{"A32000", "B32012", "M32006"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/stations/"+code+"/traffic", http.NoBody)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	total, points := collectSum(t, reader, "http.server.request.total")
	assert.Equal(t, int64(3), total)
	require.Len(t, points, 1)

	route, ok := points[0].Attributes.Value("http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/stations/{code}/traffic", route.AsString())
}

func TestMetrics_Middleware_Error(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stations/traffic", http.NoBody)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetrics_Middleware_DefaultStatusCode(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProviderMetrics_Cache(t *testing.T) {
	reader := setupTestMeter(t)
	pm, err := middleware.NewProviderMetrics()
	require.NoError(t, err)

	pm.RecordCacheHit("bluebikes", "get-trips")
	pm.RecordCacheHit("bluebikes", "get-trips")
	pm.RecordCacheMiss("bluebikes", "get-stations")

	hits, _ := collectSum(t, reader, "provider.cache.hit")
	misses, _ := collectSum(t, reader, "provider.cache.miss")
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestProviderMetrics_RecordRequest(t *testing.T) {
	reader := setupTestMeter(t)
	pm, err := middleware.NewProviderMetrics()
	require.NoError(t, err)

	pm.RecordRequest("bluebikes", "get-trips", 120*time.Millisecond, nil)
	pm.RecordRequest("bluebikes", "get-trips", 80*time.Millisecond, errors.New("boom"))

	total, points := collectSum(t, reader, "provider.request.total")
	assert.Equal(t, int64(2), total)
	assert.Len(t, points, 2)
}

func TestProviderMetrics_RecordImport(t *testing.T) {
	reader := setupTestMeter(t)
	pm, err := middleware.NewProviderMetrics()
	require.NoError(t, err)

	pm.RecordImport("bluebikes", 1200, nil)
	pm.RecordImport("bluebikes", 0, errors.New("feed down"))

	total, _ := collectSum(t, reader, "dataset.import.total")
	assert.Equal(t, int64(2), total)
}
