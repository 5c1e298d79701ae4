package store

import (
	"sync"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// MemoryStore provides an in-memory connection store. It is thread-safe and
// supports concurrent access; primarily used by tests and the CLI dry modes.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[string]*models.OAuthConnection
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conns: make(map[string]*models.OAuthConnection),
	}
}

func connKey(tenantID string, provider models.Provider) string {
	return tenantID + "/" + string(provider)
}

// GetConnection retrieves a connection by tenant and provider.
func (s *MemoryStore) GetConnection(tenantID string, provider models.Provider) (*models.OAuthConnection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.conns[connKey(tenantID, provider)]
	if !ok {
		return nil, false
	}
	return conn.Clone(), true
}

// PutConnection stores or replaces a connection. The stored token_version is
// always advanced past the previous row's so it stays monotonic across
// reconnects.
func (s *MemoryStore) PutConnection(conn *models.OAuthConnection) error {
	if err := conn.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := conn.Clone()
	now := time.Now()
	if prev, ok := s.conns[connKey(conn.TenantID, conn.Provider)]; ok {
		if stored.TokenVersion <= prev.TokenVersion {
			stored.TokenVersion = prev.TokenVersion + 1
		}
		stored.CreatedAt = prev.CreatedAt
	} else {
		if stored.TokenVersion == 0 {
			stored.TokenVersion = 1
		}
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.conns[connKey(conn.TenantID, conn.Provider)] = stored
	return nil
}

// UpdateIfVersionMatches applies patch only when the stored version still
// equals expectedVersion. Returns (nil, nil) on version mismatch or missing
// row.
func (s *MemoryStore) UpdateIfVersionMatches(tenantID string, provider models.Provider, expectedVersion int64, patch ConnectionPatch) (*models.OAuthConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[connKey(tenantID, provider)]
	if !ok || conn.TokenVersion != expectedVersion {
		return nil, nil
	}

	applyPatch(conn, patch, time.Now())
	return conn.Clone(), nil
}

// MarkNeedsReauth durably parks a connection until a fresh grant clears it.
func (s *MemoryStore) MarkNeedsReauth(tenantID string, provider models.Provider, reason, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[connKey(tenantID, provider)]
	if !ok {
		return nil
	}
	if conn.Metadata == nil {
		conn.Metadata = make(map[string]string)
	}
	conn.Metadata[models.MetaNeedsReauth] = "true"
	conn.Metadata[models.MetaReauthReason] = reason
	conn.Metadata[models.MetaReauthAt] = time.Now().UTC().Format(time.RFC3339)
	if details != "" {
		conn.Metadata["reauth_details"] = details
	}
	conn.UpdatedAt = time.Now()
	return nil
}

// ListConnections returns all stored connections.
func (s *MemoryStore) ListConnections() ([]*models.OAuthConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.OAuthConnection, 0, len(s.conns))
	for _, conn := range s.conns {
		result = append(result, conn.Clone())
	}
	return result, nil
}

// DeleteConnection removes a connection.
func (s *MemoryStore) DeleteConnection(tenantID string, provider models.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := connKey(tenantID, provider)
	if _, ok := s.conns[key]; !ok {
		return false
	}
	delete(s.conns, key)
	return true
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
