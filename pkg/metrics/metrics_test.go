package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_HTTPMiddleware(t *testing.T) {
	m := NewMetrics(true, false, logger.NewNopLogger())

	handler := m.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, float64(4), testutil.ToFloat64(m.TotalHTTPRequestsCounter))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.HTTPResponsesCounter.WithLabelValues("200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPResponsesCounter.WithLabelValues("404")))

	body := scrape(t, m)
	assert.Contains(t, body, `handoff_http_responses_total{code="404"} 1`)
}

func TestMetrics_Exchanges(t *testing.T) {
	m := NewMetrics(false, true, logger.NewNopLogger())

	m.ExchangeStarted()
	m.ExchangeStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ExchangesInFlight))

	m.ExchangeFinished("succeeded", 2*time.Second)
	m.ExchangeFinished("timed_out", time.Minute)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.ExchangesInFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExchangesCounter.WithLabelValues("succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExchangesCounter.WithLabelValues("timed_out")))

	body := scrape(t, m)
	assert.Contains(t, body, `handoff_exchange_duration_seconds_count{outcome="succeeded"} 1`)
}

func TestMetrics_DisabledGroupsAreNoOps(t *testing.T) {
	m := NewMetrics(false, false, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		m.ExchangeStarted()
		m.ExchangeFinished("failed", time.Second)
		m.IncrementHTTPResponseCounter(500)
		m.HTTPMiddleware()(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.False(t, strings.Contains(scrape(t, m), "handoff_"))
}

func TestMetrics_SetCustomMetrics(t *testing.T) {
	m := NewMetrics(false, false, logger.NewNopLogger())
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "test", Name: "foo1", Help: "foo 1 help"})
	m.AddCustomMetric(c)
	c.Inc()

	assert.Contains(t, scrape(t, m), "test_foo1 1")
}
