package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/obs"
)

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("klinik", nil, reg)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/bills/{domain}/{invoiceNumber}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, path := range []string{"/api/v1/bills/lab/LAB-00001", "/api/v1/bills/pharmacy/PHR-00002", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/v1/bills/{domain}/{invoiceNumber}", "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "unmatched", "404")))
	require.Equal(t, 2, testutil.CollectAndCount(metrics.Duration))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("klinik", nil, reg)
	second := obs.NewHTTPMetrics("klinik", nil, reg)
	require.Same(t, first.Requests, second.Requests)
}

func TestParseBuckets(t *testing.T) {
	require.Equal(t, []float64{0.05, 0.1, 1}, obs.ParseBuckets("1, 0.1,bad,,-2,0.05"))
	require.Nil(t, obs.ParseBuckets(""))
}

func TestRequestLoggerLevelsAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var fromCtx bool
	r := chi.NewRouter()
	r.Use(common.OperatorMiddleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Post("/visits/{visitId}/carts/{domain}/finalize", func(w http.ResponseWriter, r *http.Request) {
		fromCtx = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodPost, "/visits/9/carts/lab/finalize", nil)
	req.Header.Set(common.OperatorHeader, "desk-2")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, fromCtx)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "/visits/{visitId}/carts/{domain}/finalize", line["route"])
	require.Equal(t, "desk-2", line["operator"])
	require.EqualValues(t, 422, line["status"])
}
