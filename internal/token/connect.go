package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tradewatch/tradewatch/internal/config"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/scopes"
	"github.com/tradewatch/tradewatch/internal/secrets"
	"github.com/tradewatch/tradewatch/internal/store"
)

const stateTTL = 15 * time.Minute

// Connector runs the authorization-code grant that creates or repairs a
// tenant connection. A successful exchange replaces the stored row outright,
// which also clears any needs_reauth parking.
type Connector struct {
	store  store.Store
	sealer *secrets.Sealer
	oauth  *oauth2.Config

	mu     sync.Mutex
	states map[string]pendingState
}

type pendingState struct {
	tenantID string
	issuedAt time.Time
}

// NewConnector builds a connector from the provider configuration.
func NewConnector(s store.Store, sealer *secrets.Sealer, provider config.ProviderConfig) *Connector {
	return &Connector{
		store:  s,
		sealer: sealer,
		oauth: &oauth2.Config{
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
			RedirectURL:  provider.RedirectURL,
			Scopes:       scopes.Requested(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  provider.AuthURL,
				TokenURL: provider.TokenURL,
			},
		},
	}
}

// AuthURL returns the provider authorization URL for a tenant along with the
// state parameter that ties the callback back to it.
func (c *Connector) AuthURL(tenantID string) (authURL, state string) {
	state = uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states == nil {
		c.states = make(map[string]pendingState)
	}
	for k, v := range c.states {
		if time.Since(v.issuedAt) > stateTTL {
			delete(c.states, k)
		}
	}
	c.states[state] = pendingState{tenantID: tenantID, issuedAt: time.Now()}

	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), state
}

// Exchange redeems the callback code, seals the granted tokens, and stores
// the connection. The state is single-use.
func (c *Connector) Exchange(ctx context.Context, state, code string) (*models.OAuthConnection, error) {
	c.mu.Lock()
	pending, ok := c.states[state]
	if ok {
		delete(c.states, state)
	}
	c.mu.Unlock()

	if !ok || time.Since(pending.issuedAt) > stateTTL {
		return nil, fmt.Errorf("unknown or expired state")
	}

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	accessEnc, err := c.sealer.Seal(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refreshEnc, err := c.sealer.Seal(tok.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	conn := &models.OAuthConnection{
		TenantID:        pending.tenantID,
		Provider:        models.ProviderFieldServe,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		Scopes:          grantedScopes(tok),
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		conn.ExpiresAt = &exp
	}

	if err := c.store.PutConnection(conn); err != nil {
		return nil, fmt.Errorf("store connection: %w", err)
	}

	stored, _ := c.store.GetConnection(pending.tenantID, models.ProviderFieldServe)
	return stored, nil
}

func grantedScopes(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}
