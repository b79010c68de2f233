package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/seat_billing/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	provider, err := Setup(context.Background(), config.ObservabilityConfig{})
	require.NoError(t, err)
	require.Nil(t, provider)
	require.Nil(t, provider.PrometheusHandler())
	// nil providers are safe to record against
	provider.RecordReport("success", 3, 100)
	provider.RecordHTTPRequest(context.Background(), "GET", "/", 200, time.Millisecond)
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestMetricsExposeReports(t *testing.T) {
	provider, err := Setup(context.Background(), config.ObservabilityConfig{EnableMetrics: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	provider.RecordReport("success", 2, 109.58)
	provider.RecordReport("not_found", 0, 0)
	provider.RecordHTTPRequest(context.Background(), "GET", "/admin/organizations/:client_id/subscription-billing", 200, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	provider.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	text := string(body)
	require.Contains(t, text, `seat_billing_reports_total{outcome="success"} 1`)
	require.Contains(t, text, `seat_billing_reports_total{outcome="not_found"} 1`)
	require.Contains(t, text, "seat_billing_report_total_cost_pln_sum 109.58")
	require.Contains(t, text, "seat_billing_http_requests_total")
}

func TestOTLPEndpoint(t *testing.T) {
	endpoint, insecure := otlpEndpoint("https://collector:4317")
	require.Equal(t, "collector:4317", endpoint)
	require.False(t, insecure)

	endpoint, insecure = otlpEndpoint("http://localhost:4317")
	require.Equal(t, "localhost:4317", endpoint)
	require.True(t, insecure)

	endpoint, _ = otlpEndpoint("")
	require.Equal(t, "localhost:4317", endpoint)
}
