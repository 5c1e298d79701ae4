package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/tradewatch/tradewatch/internal/errors"
	"github.com/tradewatch/tradewatch/internal/models"
)

// SQLiteStore provides a SQLite-backed connection store with WAL mode.
// It is thread-safe and supports concurrent access; the compare-and-swap
// update runs as a single conditional UPDATE so concurrent writers across
// processes cannot both win.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &apperrors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &apperrors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &apperrors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS oauth_connections (
					tenant_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					account_id TEXT DEFAULT '',
					access_token_enc BLOB,
					refresh_token_enc BLOB,
					expires_at DATETIME,
					scopes TEXT NOT NULL DEFAULT '',
					token_version INTEGER NOT NULL DEFAULT 1,
					metadata TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (tenant_id, provider)
				);

				CREATE INDEX IF NOT EXISTS idx_oauth_connections_provider ON oauth_connections(provider);
				CREATE INDEX IF NOT EXISTS idx_oauth_connections_updated_at ON oauth_connections(updated_at);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.up); err != nil {
			return &apperrors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return &apperrors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}
	return nil
}

const connColumns = `tenant_id, provider, account_id, access_token_enc, refresh_token_enc, expires_at, scopes, token_version, metadata, created_at, updated_at`

func scanConnection(row interface{ Scan(...interface{}) error }) (*models.OAuthConnection, error) {
	var (
		conn     models.OAuthConnection
		expires  sql.NullTime
		metadata string
	)
	err := row.Scan(
		&conn.TenantID, &conn.Provider, &conn.AccountID,
		&conn.AccessTokenEnc, &conn.RefreshTokenEnc, &expires,
		&conn.Scopes, &conn.TokenVersion, &metadata,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		conn.ExpiresAt = &t
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &conn.Metadata); err != nil {
			return nil, err
		}
	}
	return &conn, nil
}

func marshalMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return "{}"
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// GetConnection retrieves a connection by tenant and provider.
func (s *SQLiteStore) GetConnection(tenantID string, provider models.Provider) (*models.OAuthConnection, bool) {
	row := s.db.QueryRow(
		`SELECT `+connColumns+` FROM oauth_connections WHERE tenant_id = ? AND provider = ?`,
		tenantID, string(provider),
	)
	conn, err := scanConnection(row)
	if err != nil {
		return nil, false
	}
	return conn, true
}

// PutConnection inserts or replaces a connection, keeping token_version
// monotonic across reconnects.
func (s *SQLiteStore) PutConnection(conn *models.OAuthConnection) error {
	if err := conn.Validate(); err != nil {
		return err
	}

	version := conn.TokenVersion
	if version == 0 {
		version = 1
	}
	if prev, ok := s.GetConnection(conn.TenantID, conn.Provider); ok && version <= prev.TokenVersion {
		version = prev.TokenVersion + 1
	}

	_, err := s.db.Exec(`
		INSERT INTO oauth_connections
			(tenant_id, provider, account_id, access_token_enc, refresh_token_enc, expires_at, scopes, token_version, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id, provider) DO UPDATE SET
			account_id = excluded.account_id,
			access_token_enc = excluded.access_token_enc,
			refresh_token_enc = excluded.refresh_token_enc,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes,
			token_version = excluded.token_version,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP`,
		conn.TenantID, string(conn.Provider), conn.AccountID,
		conn.AccessTokenEnc, conn.RefreshTokenEnc, nullTime(conn.ExpiresAt),
		conn.Scopes, version, marshalMetadata(conn.Metadata),
	)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "put connection", Err: err}
	}
	return nil
}

// UpdateIfVersionMatches applies patch only when token_version still equals
// expectedVersion, in one conditional UPDATE. Returns (nil, nil) when another
// writer already advanced the version.
func (s *SQLiteStore) UpdateIfVersionMatches(tenantID string, provider models.Provider, expectedVersion int64, patch ConnectionPatch) (*models.OAuthConnection, error) {
	current, ok := s.GetConnection(tenantID, provider)
	if !ok {
		return nil, nil
	}
	if current.TokenVersion != expectedVersion {
		return nil, nil
	}

	next := current.Clone()
	applyPatch(next, patch, time.Now())

	res, err := s.db.Exec(`
		UPDATE oauth_connections SET
			access_token_enc = ?,
			refresh_token_enc = ?,
			expires_at = ?,
			scopes = ?,
			token_version = ?,
			metadata = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND provider = ? AND token_version = ?`,
		next.AccessTokenEnc, next.RefreshTokenEnc, nullTime(next.ExpiresAt),
		next.Scopes, next.TokenVersion, marshalMetadata(next.Metadata),
		tenantID, string(provider), expectedVersion,
	)
	if err != nil {
		return nil, &apperrors.ErrDatabaseQuery{Operation: "cas update connection", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, &apperrors.ErrDatabaseQuery{Operation: "cas rows affected", Err: err}
	}
	if affected == 0 {
		// Lost the race between the read above and the conditional write.
		return nil, nil
	}

	updated, _ := s.GetConnection(tenantID, provider)
	return updated, nil
}

// MarkNeedsReauth durably parks a connection until a fresh grant clears it.
func (s *SQLiteStore) MarkNeedsReauth(tenantID string, provider models.Provider, reason, details string) error {
	conn, ok := s.GetConnection(tenantID, provider)
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

	_, err := s.db.Exec(
		`UPDATE oauth_connections SET metadata = ?, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ? AND provider = ?`,
		marshalMetadata(conn.Metadata), tenantID, string(provider),
	)
	if err != nil {
		return &apperrors.ErrDatabaseQuery{Operation: "mark needs reauth", Err: err}
	}
	return nil
}

// ListConnections returns all stored connections.
func (s *SQLiteStore) ListConnections() ([]*models.OAuthConnection, error) {
	rows, err := s.db.Query(`SELECT ` + connColumns + ` FROM oauth_connections ORDER BY tenant_id`)
	if err != nil {
		return nil, &apperrors.ErrDatabaseQuery{Operation: "list connections", Err: err}
	}
	defer rows.Close()

	var result []*models.OAuthConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, &apperrors.ErrDatabaseQuery{Operation: "scan connection", Err: err}
		}
		result = append(result, conn)
	}
	return result, rows.Err()
}

// DeleteConnection removes a connection.
func (s *SQLiteStore) DeleteConnection(tenantID string, provider models.Provider) bool {
	res, err := s.db.Exec(
		`DELETE FROM oauth_connections WHERE tenant_id = ? AND provider = ?`,
		tenantID, string(provider),
	)
	if err != nil {
		return false
	}
	affected, _ := res.RowsAffected()
	return affected > 0
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
