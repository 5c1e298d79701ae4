package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/tradewatch/internal/config"
	"github.com/tradewatch/tradewatch/internal/fetch"
	"github.com/tradewatch/tradewatch/internal/graphql"
	"github.com/tradewatch/tradewatch/internal/ingest"
	"github.com/tradewatch/tradewatch/internal/metrics"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/secrets"
	"github.com/tradewatch/tradewatch/internal/store"
	"github.com/tradewatch/tradewatch/internal/token"
)

type stubTokens struct {
	bundle *models.TokenBundle
	err    error
}

func (s *stubTokens) GetToken(context.Context, string, bool) (*models.TokenBundle, error) {
	return s.bundle, s.err
}

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, query string, _ map[string]interface{}, _ string) (*graphql.Response, error) {
	for _, root := range []string{"quotes", "invoices", "jobs", "clients", "payments"} {
		if !strings.Contains(query, root+"(first:") {
			continue
		}
		data, _ := json.Marshal(map[string]interface{}{
			root: map[string]interface{}{
				"edges":    []map[string]interface{}{{"node": map[string]interface{}{"id": root + "-1"}}},
				"pageInfo": map[string]interface{}{"hasNextPage": false, "endCursor": ""},
			},
		})
		return &graphql.Response{Data: data}, nil
	}
	return nil, &graphql.APIError{Message: "unknown query"}
}

func newTestServer(t *testing.T, apiCfg config.APIConfig) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	sealer, err := secrets.NewSealer(key)
	require.NoError(t, err)

	fetcher := fetch.NewFetcher(stubExecutor{}, config.Default().Fetch, zerolog.Nop(), nil)
	runner := ingest.NewRunner(&stubTokens{bundle: &models.TokenBundle{AccessToken: "tok"}}, fetcher, 0, zerolog.Nop(), nil)
	connector := token.NewConnector(st, sealer, config.ProviderConfig{
		ClientID: "cid",
		AuthURL:  "https://provider.example.com/authorize",
		TokenURL: "https://provider.example.com/token",
	})
	m := metrics.NewMetrics("tradewatch_test")

	srv := NewServer(config.ServerConfig{}, apiCfg, st, runner, connector, m, zerolog.Nop())
	return srv, st
}

func seedConnection(t *testing.T, st store.Store, tenant string) {
	t.Helper()
	exp := time.Now().Add(time.Hour).UTC()
	require.NoError(t, st.PutConnection(&models.OAuthConnection{
		TenantID:       tenant,
		Provider:       models.ProviderFieldServe,
		AccessTokenEnc: []byte("sealed"),
		ExpiresAt:      &exp,
		Scopes:         "quotes:read invoices:read jobs:read payments:read",
	}))
}

func doRequest(srv *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	w := doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	w := doRequest(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListConnectionsRedactsTokens(t *testing.T) {
	srv, st := newTestServer(t, config.APIConfig{})
	seedConnection(t, st, "t1")

	w := doRequest(srv, http.MethodGet, "/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "sealed")

	var body struct {
		Count       int              `json:"count"`
		Connections []connectionView `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "t1", body.Connections[0].TenantID)
	require.False(t, body.Connections[0].NeedsReauth)
}

func TestGetConnectionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	w := doRequest(srv, http.MethodGet, "/connections/ghost", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteConnection(t *testing.T) {
	srv, st := newTestServer(t, config.APIConfig{})
	seedConnection(t, st, "t1")

	w := doRequest(srv, http.MethodDelete, "/connections/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodDelete, "/connections/t1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectReturnsAuthURL(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	w := doRequest(srv, http.MethodPost, "/connections/t1/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body["auth_url"], "provider.example.com/authorize")
	require.NotEmpty(t, body["state"])
}

func TestSyncEndpoint(t *testing.T) {
	srv, st := newTestServer(t, config.APIConfig{})
	seedConnection(t, st, "t1")

	w := doRequest(srv, http.MethodPost, "/connections/t1/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result ingest.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, ingest.StatusOK, result.Status)
	require.Len(t, result.Resources, 5)
}

func TestSyncEndpointRejectsBadSince(t *testing.T) {
	srv, st := newTestServer(t, config.APIConfig{})
	seedConnection(t, st, "t1")

	w := doRequest(srv, http.MethodPost, "/connections/t1/sync?since=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodPost, "/connections/t1/sync?since=2026-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := config.APIConfig{Auth: config.AuthConfig{APIKeys: []string{"secret-key"}}}
	srv, st := newTestServer(t, cfg)
	seedConnection(t, st, "t1")

	w := doRequest(srv, http.MethodGet, "/connections", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(srv, http.MethodGet, "/connections", map[string]string{"X-API-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(srv, http.MethodGet, "/connections", map[string]string{"X-API-Key": "secret-key"})
	require.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w = doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOAuthCallbackRequiresParams(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	w := doRequest(srv, http.MethodGet, "/oauth/callback", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
