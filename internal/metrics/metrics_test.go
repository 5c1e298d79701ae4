package metrics

import (
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRecordRefreshOutcomes(t *testing.T) {
	m := NewMetrics("tradewatch_test")

	m.RecordRefresh("success")
	m.RecordRefresh("success")
	m.RecordRefresh("invalid_refresh")

	metric := &dto.Metric{}
	require.NoError(t, m.RefreshAttempts.WithLabelValues("success").Write(metric))
	require.Equal(t, 2.0, metric.GetCounter().GetValue())

	require.NoError(t, m.RefreshAttempts.WithLabelValues("invalid_refresh").Write(metric))
	require.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestRecordGraphQLObservesCost(t *testing.T) {
	m := NewMetrics("tradewatch_test")

	m.RecordGraphQL("ok", 1200)
	m.RecordGraphQL("rate_limited", 0)

	metric := &dto.Metric{}
	require.NoError(t, m.QueryCost.Write(metric))
	require.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRefresh("success")
	m.RecordGraphQL("ok", 10)
	m.RecordPage("quotes", 5)
	m.RecordSync("ok")
	m.RecordNeedsReauth("missing_refresh_token")
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("tradewatch_test")
	m.RecordPage("quotes", 3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "tradewatch_test_pages_fetched_total")
}
