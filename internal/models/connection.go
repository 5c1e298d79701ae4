package models

import (
	"fmt"
	"time"
)

// Provider identifies an upstream platform a tenant can connect.
type Provider string

const (
	// ProviderFieldServe is the field-service platform this system ingests from.
	ProviderFieldServe Provider = "fieldserve"
)

// Metadata keys stored on a connection.
const (
	MetaNeedsReauth  = "needs_reauth"
	MetaReauthReason = "reauth_reason"
	MetaReauthAt     = "reauth_at"
)

// Reauth reasons recorded when a connection is parked.
const (
	ReauthMissingRequiredScopes = "missing_required_scopes"
	ReauthMissingRefreshToken   = "missing_refresh_token"
	ReauthRefreshTokenInvalid   = "refresh_token_invalid"
	ReauthRefreshContention     = "refresh_contention"
)

// OAuthConnection is the persisted credential record for one tenant on one
// provider. Token material is sealed before it reaches the store; TokenVersion
// only ever increases and every write goes through the store's
// compare-and-swap update.
type OAuthConnection struct {
	TenantID        string            `json:"tenant_id"`
	Provider        Provider          `json:"provider"`
	AccountID       string            `json:"account_id,omitempty"`
	AccessTokenEnc  []byte            `json:"-"`
	RefreshTokenEnc []byte            `json:"-"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	Scopes          string            `json:"scopes"`
	TokenVersion    int64             `json:"token_version"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Validate checks the connection has the fields every persisted row needs.
func (c *OAuthConnection) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.TokenVersion < 0 {
		return fmt.Errorf("token version cannot be negative")
	}
	return nil
}

// NeedsReauth reports whether automatic refresh is parked until the tenant
// completes a fresh grant.
func (c *OAuthConnection) NeedsReauth() bool {
	if c == nil || c.Metadata == nil {
		return false
	}
	return c.Metadata[MetaNeedsReauth] == "true"
}

// ReauthReason returns the recorded reason, if any.
func (c *OAuthConnection) ReauthReason() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetaReauthReason]
}

// Clone returns a deep copy so callers can mutate without racing the store.
func (c *OAuthConnection) Clone() *OAuthConnection {
	if c == nil {
		return nil
	}
	out := *c
	if c.AccessTokenEnc != nil {
		out.AccessTokenEnc = append([]byte(nil), c.AccessTokenEnc...)
	}
	if c.RefreshTokenEnc != nil {
		out.RefreshTokenEnc = append([]byte(nil), c.RefreshTokenEnc...)
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// TokenBundle is the decrypted, ephemeral view of a connection's tokens.
// It is materialized per read and discarded after use.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Version      int64
}

// ExpiresWithin reports whether the bundle expires inside the given buffer.
// A missing expiry is treated as already expired.
func (b *TokenBundle) ExpiresWithin(buffer time.Duration, now time.Time) bool {
	if b.ExpiresAt == nil {
		return true
	}
	return b.ExpiresAt.Sub(now) <= buffer
}
