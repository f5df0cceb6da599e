// internal/store/postgresql.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgreSQLStore persists entries in a PostgreSQL table, for deployments
// where several instances share one durable fallback store.
type PostgreSQLStore struct {
	db    *sql.DB
	table string
}

// NewPostgreSQLStore connects with the given DSN and ensures the key-value
// table exists.
func NewPostgreSQLStore(dsn, table string) (*PostgreSQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgresql connection string is required")
	}
	if table == "" {
		table = "fallback_kv"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgresql: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &PostgreSQLStore{db: db, table: table}
	if err := s.ensureTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgreSQLStore) ensureTable() error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		expires_at BIGINT NOT NULL DEFAULT 0
	)`, s.table)
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Get returns the value for key, treating expired rows as absent.
func (s *PostgreSQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT value, expires_at FROM %s WHERE key = $1", s.table)

	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgresql get failed: %w", err)
	}

	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		s.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return value, nil
}

// Set upserts the value with an absolute expiry derived from ttl.
func (s *PostgreSQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("postgresql set failed: %w", err)
	}
	return nil
}

// Delete removes key if present.
func (s *PostgreSQLStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("postgresql delete failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}
