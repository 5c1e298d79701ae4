// Package token owns the credential lifecycle for tenant connections:
// deciding when an access token is still usable, refreshing it against the
// provider with single-flight and optimistic locking, and durably parking
// connections that can only be fixed by a fresh grant.
package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tradewatch/tradewatch/internal/config"
	apperrors "github.com/tradewatch/tradewatch/internal/errors"
	"github.com/tradewatch/tradewatch/internal/metrics"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/scopes"
	"github.com/tradewatch/tradewatch/internal/secrets"
	"github.com/tradewatch/tradewatch/internal/store"
)

// Notifier receives operator-facing events. Implemented by the alerts
// dispatcher; a nil Notifier disables alerting.
type Notifier interface {
	Notify(title, message string)
}

// Refresh outcomes recorded in metrics.
const (
	outcomeSuccess    = "success"
	outcomeInvalid    = "invalid_grant"
	outcomeContention = "contention"
	outcomeError      = "error"
	outcomeCoalesced  = "coalesced"
)

// Options configures a Manager.
type Options struct {
	Store          store.Store
	Sealer         *secrets.Sealer
	Provider       config.ProviderConfig
	RefreshBuffer  time.Duration
	RequestTimeout time.Duration
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	Notifier       Notifier
}

// Manager hands out usable access tokens for tenants. Refreshes for the same
// tenant are coalesced in-process through a single-flight group, and every
// credential write goes through the store's compare-and-swap so concurrent
// processes cannot clobber each other either.
type Manager struct {
	store         store.Store
	sealer        *secrets.Sealer
	provider      config.ProviderConfig
	refreshBuffer time.Duration
	refresher     *refresher
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	notifier      Notifier

	group singleflight.Group

	// now is swappable in tests.
	now func() time.Time
}

// NewManager builds a token manager.
func NewManager(opts Options) *Manager {
	buffer := opts.RefreshBuffer
	if buffer <= 0 {
		buffer = 90 * time.Second
	}
	return &Manager{
		store:         opts.Store,
		sealer:        opts.Sealer,
		provider:      opts.Provider,
		refreshBuffer: buffer,
		refresher:     newRefresher(opts.Provider, opts.RequestTimeout),
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		notifier:      opts.Notifier,
		now:           time.Now,
	}
}

// GetToken returns a usable bundle for the tenant, refreshing first when the
// stored token expires within the refresh buffer or force is set. It returns
// ErrNotConnected when the tenant has no connection, the connection is parked
// behind needs_reauth, or this call had to park it.
func (m *Manager) GetToken(ctx context.Context, tenantID string, force bool) (*models.TokenBundle, error) {
	conn, ok := m.store.GetConnection(tenantID, models.ProviderFieldServe)
	if !ok {
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID}
	}

	if conn.NeedsReauth() {
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: conn.ReauthReason()}
	}

	// The scope gate runs before any network call: a grant that cannot serve
	// fetches is parked immediately rather than refreshed forever.
	if missing := scopes.Missing(conn.Scopes); len(missing) > 0 {
		m.park(tenantID, models.ReauthMissingRequiredScopes, strings.Join(missing, " "))
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: models.ReauthMissingRequiredScopes}
	}

	if len(conn.AccessTokenEnc) == 0 {
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: "no access token stored"}
	}

	bundle, err := m.decrypt(conn)
	if err != nil {
		return nil, fmt.Errorf("decrypt tokens for tenant %s: %w", tenantID, err)
	}

	if !force && !bundle.ExpiresWithin(m.refreshBuffer, m.now()) {
		return bundle, nil
	}

	if bundle.RefreshToken == "" {
		m.park(tenantID, models.ReauthMissingRefreshToken, "")
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: models.ReauthMissingRefreshToken}
	}

	if m.provider.ClientID == "" || m.provider.ClientSecret == "" || m.provider.TokenURL == "" {
		m.logger.Warn().Str("tenant_id", tenantID).Msg("provider client credentials not configured, cannot refresh")
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: "provider credentials not configured"}
	}

	key := tenantID + "/" + string(models.ProviderFieldServe)
	result, err, shared := m.group.Do(key, func() (interface{}, error) {
		return m.refreshLocked(ctx, tenantID, force)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.metrics.RecordRefresh(outcomeCoalesced)
	}
	return result.(*models.TokenBundle), nil
}

// refreshLocked runs inside the single-flight group. It re-reads the
// connection first so callers that queued behind a completed refresh reuse
// the fresh credentials instead of refreshing again; force skips that reuse
// and always hits the provider.
func (m *Manager) refreshLocked(ctx context.Context, tenantID string, force bool) (*models.TokenBundle, error) {
	conn, ok := m.store.GetConnection(tenantID, models.ProviderFieldServe)
	if !ok {
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID}
	}
	if conn.NeedsReauth() {
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: conn.ReauthReason()}
	}

	bundle, err := m.decrypt(conn)
	if err != nil {
		return nil, fmt.Errorf("decrypt tokens for tenant %s: %w", tenantID, err)
	}
	if !force && !bundle.ExpiresWithin(m.refreshBuffer, m.now()) {
		return bundle, nil
	}
	if bundle.RefreshToken == "" {
		m.park(tenantID, models.ReauthMissingRefreshToken, "")
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: models.ReauthMissingRefreshToken}
	}

	return m.refreshWithOptimisticLock(ctx, tenantID, bundle, true)
}

// refreshWithOptimisticLock performs the provider round trip and the
// compare-and-swap write. On version contention it re-reads once: if another
// writer left usable credentials the refresh self-heals, otherwise the
// connection is parked so the two-writer race cannot loop.
func (m *Manager) refreshWithOptimisticLock(ctx context.Context, tenantID string, bundle *models.TokenBundle, retryOnContention bool) (*models.TokenBundle, error) {
	grant, err := m.refresher.refresh(ctx, bundle.RefreshToken)
	if err != nil {
		if isInvalidGrant(err) {
			m.park(tenantID, models.ReauthRefreshTokenInvalid, err.Error())
			m.metrics.RecordRefresh(outcomeInvalid)
			m.notify("Reconnect required",
				fmt.Sprintf("Tenant %s: the provider rejected the stored refresh token; the tenant must re-authorize.", tenantID))
			return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: models.ReauthRefreshTokenInvalid}
		}
		m.metrics.RecordRefresh(outcomeError)
		return nil, fmt.Errorf("refresh token for tenant %s: %w", tenantID, err)
	}

	accessEnc, err := m.sealer.Seal(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	newRefresh := grant.RefreshToken
	if newRefresh == "" {
		// Provider did not rotate the refresh token; keep the stored one.
		newRefresh = bundle.RefreshToken
	}
	refreshEnc, err := m.sealer.Seal(newRefresh)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	patch := store.ConnectionPatch{
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
	}
	if grant.ExpiresAt != nil {
		patch.ExpiresAt = grant.ExpiresAt
	}
	if grant.Scope != "" {
		patch.Scopes = &grant.Scope
	}

	updated, err := m.store.UpdateIfVersionMatches(tenantID, models.ProviderFieldServe, bundle.Version, patch)
	if err != nil {
		return nil, fmt.Errorf("persist refreshed tokens for tenant %s: %w", tenantID, err)
	}

	if updated == nil {
		// Another writer advanced the version while we were on the wire.
		current, ok := m.store.GetConnection(tenantID, models.ProviderFieldServe)
		if ok && !current.NeedsReauth() {
			if fresh, derr := m.decrypt(current); derr == nil && !fresh.ExpiresWithin(m.refreshBuffer, m.now()) {
				m.logger.Debug().Str("tenant_id", tenantID).Msg("refresh lost version race, reusing winner's credentials")
				m.metrics.RecordRefresh(outcomeContention)
				return fresh, nil
			}
		}
		if retryOnContention {
			// One self-heal attempt against the current version.
			if ok {
				if fresh, derr := m.decrypt(current); derr == nil && fresh.RefreshToken != "" {
					return m.refreshWithOptimisticLock(ctx, tenantID, fresh, false)
				}
			}
		}
		m.park(tenantID, models.ReauthRefreshContention, "")
		m.metrics.RecordRefresh(outcomeContention)
		return nil, &apperrors.ErrNotConnected{TenantID: tenantID, Reason: models.ReauthRefreshContention}
	}

	m.metrics.RecordRefresh(outcomeSuccess)
	m.logger.Info().
		Str("tenant_id", tenantID).
		Int64("token_version", updated.TokenVersion).
		Msg("refreshed access token")

	return m.decrypt(updated)
}

// decrypt materializes the ephemeral bundle for a stored connection.
func (m *Manager) decrypt(conn *models.OAuthConnection) (*models.TokenBundle, error) {
	access, err := m.sealer.Open(conn.AccessTokenEnc)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sealer.Open(conn.RefreshTokenEnc)
	if err != nil {
		return nil, err
	}
	return &models.TokenBundle{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    conn.ExpiresAt,
		Version:      conn.TokenVersion,
	}, nil
}

// park durably marks the connection as needing reauthorization.
func (m *Manager) park(tenantID, reason, details string) {
	if err := m.store.MarkNeedsReauth(tenantID, models.ProviderFieldServe, reason, details); err != nil {
		m.logger.Error().Err(err).Str("tenant_id", tenantID).Str("reason", reason).Msg("failed to mark connection for reauth")
		return
	}
	m.metrics.RecordNeedsReauth(reason)
	m.logger.Warn().
		Str("tenant_id", tenantID).
		Str("reason", reason).
		Str("details", details).
		Msg("connection parked, reauthorization required")
}

func (m *Manager) notify(title, message string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(title, message)
}
