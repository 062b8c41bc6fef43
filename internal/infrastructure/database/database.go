package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// defaultBusyTimeout applies when store.busy_timeout is unset (seconds).
	defaultBusyTimeout = 5
)

// ErrIntegrity is returned by HealthCheck when SQLite reports corruption.
var ErrIntegrity = errors.New("database: integrity check failed")

// DB is the local SQLite file holding the in-flight message store.
//
// SQLite has a single writer, so the pool is pinned to one connection and
// paho's store calls are serialised by database/sql.
type DB struct {
	*sql.DB
	path string
}

// Open opens the store database, creating the file and its directory when
// missing, and verifies it answers within ctx.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: The store section of the client configuration
//
// Returns:
//   - *DB: Open database; the caller closes it
//   - error: If the path is empty or the file cannot be opened
func Open(ctx context.Context, cfg config.StoreConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database: store.path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dataSourceName(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("opening store %s: %w", cfg.Path, err)
	}

	// The file exists once the ping has run.
	if err := os.Chmod(cfg.Path, filePermissions); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("restricting store permissions: %w", err)
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dataSourceName builds the go-sqlite3 connection string for cfg.
// See https://github.com/mattn/go-sqlite3#connection-string.
func dataSourceName(cfg config.StoreConfig) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(busy*1000))
	if cfg.WALMode {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

// Close closes the database. Closing a zero DB is a no-op.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing store %s: %w", db.path, err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs SQLite's quick_check so a damaged store is reported
// before paho replays packets from it.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrIntegrity, result)
	}
	return nil
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
