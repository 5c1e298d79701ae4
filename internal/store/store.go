package store

import (
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// ConnectionPatch carries the fields a compare-and-swap update may change.
// Nil slices/pointers leave the stored value untouched, except RefreshTokenEnc
// which always overwrites (a rotated refresh credential must never survive).
type ConnectionPatch struct {
	AccessTokenEnc  []byte
	RefreshTokenEnc []byte
	ExpiresAt       *time.Time
	Scopes          *string
	ClearReauth     bool
}

// Store persists OAuth connections, one row per (tenant, provider).
//
// UpdateIfVersionMatches is the only mutation path for token material: it
// succeeds only when the stored token_version still equals expectedVersion,
// bumps the version by one, and returns the updated row. A version mismatch
// returns (nil, nil) so callers re-read instead of overwriting newer
// credentials.
type Store interface {
	GetConnection(tenantID string, provider models.Provider) (*models.OAuthConnection, bool)
	PutConnection(conn *models.OAuthConnection) error
	UpdateIfVersionMatches(tenantID string, provider models.Provider, expectedVersion int64, patch ConnectionPatch) (*models.OAuthConnection, error)
	MarkNeedsReauth(tenantID string, provider models.Provider, reason, details string) error
	ListConnections() ([]*models.OAuthConnection, error)
	DeleteConnection(tenantID string, provider models.Provider) bool
	Close() error
}

// applyPatch mutates conn in place per patch semantics and stamps updated_at.
// Shared by both implementations so CAS behavior cannot drift between them.
func applyPatch(conn *models.OAuthConnection, patch ConnectionPatch, now time.Time) {
	if patch.AccessTokenEnc != nil {
		conn.AccessTokenEnc = patch.AccessTokenEnc
	}
	conn.RefreshTokenEnc = patch.RefreshTokenEnc
	if patch.ExpiresAt != nil {
		t := *patch.ExpiresAt
		conn.ExpiresAt = &t
	}
	if patch.Scopes != nil {
		conn.Scopes = *patch.Scopes
	}
	if patch.ClearReauth && conn.Metadata != nil {
		delete(conn.Metadata, models.MetaNeedsReauth)
		delete(conn.Metadata, models.MetaReauthReason)
		delete(conn.Metadata, models.MetaReauthAt)
	}
	conn.TokenVersion++
	conn.UpdatedAt = now
}
