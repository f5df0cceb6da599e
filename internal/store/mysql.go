// internal/store/mysql.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLStore persists entries in a MySQL/MariaDB table.
type MySQLStore struct {
	db    *sql.DB
	table string
}

// NewMySQLStore connects with the given DSN and ensures the key-value table
// exists.
func NewMySQLStore(dsn, table string) (*MySQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}
	if table == "" {
		table = "fallback_kv"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &MySQLStore{db: db, table: table}
	if err := s.ensureTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) ensureTable() error {
	// 512 keeps the primary key inside InnoDB index limits.
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"`key` VARCHAR(512) PRIMARY KEY, "+
		"`value` MEDIUMBLOB NOT NULL, "+
		"`expires_at` BIGINT NOT NULL DEFAULT 0)", s.table)
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Get returns the value for key, treating expired rows as absent.
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT `value`, `expires_at` FROM %s WHERE `key` = ?", s.table)

	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysql get failed: %w", err)
	}

	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		s.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return value, nil
}

// Set upserts the value with an absolute expiry derived from ttl.
func (s *MySQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	query := fmt.Sprintf("INSERT INTO %s (`key`, `value`, `expires_at`) VALUES (?, ?, ?) "+
		"ON DUPLICATE KEY UPDATE `value` = VALUES(`value`), `expires_at` = VALUES(`expires_at`)", s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("mysql set failed: %w", err)
	}
	return nil
}

// Delete removes key if present.
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE `key` = ?", s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("mysql delete failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
