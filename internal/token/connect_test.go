package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradewatch/tradewatch/internal/config"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/secrets"
	"github.com/tradewatch/tradewatch/internal/store"
)

func newConnectorEnv(t *testing.T) (*Connector, store.Store, *secrets.Sealer) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		require.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "granted-access",
			"refresh_token": "granted-refresh",
			"expires_in": 3600,
			"scope": "quotes:read invoices:read jobs:read payments:read clients:read"
		}`))
	}))
	t.Cleanup(srv.Close)

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	sealer, err := secrets.NewSealer(key)
	require.NoError(t, err)

	s := store.NewMemoryStore()
	c := NewConnector(s, sealer, config.ProviderConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		RedirectURL:  "https://ops.example.com/callback",
	})
	return c, s, sealer
}

func TestAuthURLCarriesStateAndScopes(t *testing.T) {
	c, _, _ := newConnectorEnv(t)

	authURL, state := c.AuthURL("t1")
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, state, q.Get("state"))
	require.Equal(t, "cid", q.Get("client_id"))
	require.Contains(t, q.Get("scope"), "quotes:read")
	require.Contains(t, q.Get("scope"), "clients:read")
}

func TestExchangeStoresConnectionAndClearsReauth(t *testing.T) {
	c, s, sealer := newConnectorEnv(t)

	// A previously parked connection is replaced wholesale by a new grant.
	require.NoError(t, s.PutConnection(&models.OAuthConnection{
		TenantID: "t1",
		Provider: models.ProviderFieldServe,
	}))
	require.NoError(t, s.MarkNeedsReauth("t1", models.ProviderFieldServe, models.ReauthRefreshTokenInvalid, ""))

	_, state := c.AuthURL("t1")
	conn, err := c.Exchange(context.Background(), state, "the-code")
	require.NoError(t, err)
	require.False(t, conn.NeedsReauth())
	require.Contains(t, conn.Scopes, "payments:read")
	require.NotNil(t, conn.ExpiresAt)

	access, err := sealer.Open(conn.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "granted-access", access)

	refresh, err := sealer.Open(conn.RefreshTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "granted-refresh", refresh)
}

func TestExchangeRejectsUnknownState(t *testing.T) {
	c, _, _ := newConnectorEnv(t)

	_, err := c.Exchange(context.Background(), "never-issued", "the-code")
	require.Error(t, err)
}

func TestExchangeStateIsSingleUse(t *testing.T) {
	c, _, _ := newConnectorEnv(t)

	_, state := c.AuthURL("t1")
	_, err := c.Exchange(context.Background(), state, "the-code")
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), state, "the-code")
	require.Error(t, err)
}
