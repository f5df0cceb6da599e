// internal/store/types.go
package store

import (
	"context"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = fmt.Errorf("store: key not found")

// KVStore is the pluggable durable backend for the cache and historical
// strategies. A ttl of zero means the entry never expires.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory     = "memory"
	BackendSQLite     = "sqlite"
	BackendPostgreSQL = "postgresql"
	BackendMySQL      = "mysql"
	BackendMongoDB    = "mongodb"
	BackendRedis      = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string `yaml:"backend" json:"backend"`
	// DSN is the driver connection string; for sqlite it is the database
	// file path, for redis a redis:// URL.
	DSN string `yaml:"dsn" json:"dsn"`
	// Table is used by the SQL backends, Collection by MongoDB.
	Table      string `yaml:"table,omitempty" json:"table,omitempty"`
	Database   string `yaml:"database,omitempty" json:"database,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

// Open constructs the configured backend. An empty backend name means the
// in-memory store.
func Open(ctx context.Context, opts Options) (KVStore, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.DSN, opts.Table)
	case BackendPostgreSQL:
		return NewPostgreSQLStore(opts.DSN, opts.Table)
	case BackendMySQL:
		return NewMySQLStore(opts.DSN, opts.Table)
	case BackendMongoDB:
		return NewMongoDBStore(ctx, opts.DSN, opts.Database, opts.Collection)
	case BackendRedis:
		return NewRedisStore(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", opts.Backend)
	}
}
