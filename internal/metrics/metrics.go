package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RefreshAttempts counts token refresh attempts by outcome
	RefreshAttempts *prometheus.CounterVec
	// NeedsReauth counts connections parked for reauth by reason
	NeedsReauth *prometheus.CounterVec
	// GraphQLRequests counts GraphQL calls by classification
	GraphQLRequests *prometheus.CounterVec
	// GraphQLRetries counts rate-limit retries performed by the executor
	GraphQLRetries prometheus.Counter
	// QueryCost observes the requested cost reported per query
	QueryCost prometheus.Histogram
	// PagesFetched counts pages fetched by resource
	PagesFetched *prometheus.CounterVec
	// RowsFetched counts rows returned to the caller by resource
	RowsFetched *prometheus.CounterVec
	// SyncRuns counts tenant sync runs by status
	SyncRuns *prometheus.CounterVec
	// HTTPRequestsTotal total ops-API HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RefreshAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_attempts_total",
				Help:      "Total number of token refresh attempts",
			},
			[]string{"outcome"},
		),
		NeedsReauth: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_needs_reauth_total",
				Help:      "Connections parked behind needs_reauth",
			},
			[]string{"reason"},
		),
		GraphQLRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_requests_total",
				Help:      "GraphQL requests by result classification",
			},
			[]string{"classification"},
		),
		GraphQLRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_retries_total",
				Help:      "Rate-limit retries performed by the executor",
			},
		),
		QueryCost: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graphql_query_cost",
				Help:      "Requested query cost reported by the upstream",
				Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 6000, 8000, 12000},
			},
		),
		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Pages fetched per resource",
			},
			[]string{"resource"},
		),
		RowsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_fetched_total",
				Help:      "Rows returned to the ingestion caller per resource",
			},
			[]string{"resource"},
		),
		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Tenant sync runs by status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of ops-API HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
	}

	registry.MustRegister(
		m.RefreshAttempts,
		m.NeedsReauth,
		m.GraphQLRequests,
		m.GraphQLRetries,
		m.QueryCost,
		m.PagesFetched,
		m.RowsFetched,
		m.SyncRuns,
		m.HTTPRequestsTotal,
	)

	return m
}

// Handler returns an http.Handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRefresh records a refresh attempt outcome.
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshAttempts.WithLabelValues(outcome).Inc()
}

// RecordNeedsReauth records a connection being parked.
func (m *Metrics) RecordNeedsReauth(reason string) {
	if m == nil {
		return
	}
	m.NeedsReauth.WithLabelValues(reason).Inc()
}

// RecordGraphQL records a request classification and optional cost.
func (m *Metrics) RecordGraphQL(classification string, requestedCost float64) {
	if m == nil {
		return
	}
	m.GraphQLRequests.WithLabelValues(classification).Inc()
	if requestedCost > 0 {
		m.QueryCost.Observe(requestedCost)
	}
}

// RecordPage records one fetched page and its row count.
func (m *Metrics) RecordPage(resource string, rows int) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(resource).Inc()
	m.RowsFetched.WithLabelValues(resource).Add(float64(rows))
}

// RecordSync records a sync run outcome.
func (m *Metrics) RecordSync(status string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(status).Inc()
}
