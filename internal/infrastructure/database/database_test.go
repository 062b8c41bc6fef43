package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
)

// TestOpen verifies database connection establishment.
func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("creates nested directory and private file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "store", "iotf.db")

		db, err := Open(ctx, config.StoreConfig{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		info, err := os.Stat(dbPath)
		if err != nil {
			t.Fatalf("database file was not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != filePermissions {
			t.Errorf("file mode = %o, want %o", perm, filePermissions)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}

		var mode string
		if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("PRAGMA journal_mode error = %v", err)
		}
		if mode != "wal" {
			t.Errorf("journal_mode = %q, want wal", mode)
		}
	})

	t.Run("without WAL", func(t *testing.T) {
		db, err := Open(ctx, config.StoreConfig{Path: filepath.Join(t.TempDir(), "plain.db")})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		var mode string
		if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("PRAGMA journal_mode error = %v", err)
		}
		if mode == "wal" {
			t.Error("journal_mode = wal, want default")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(ctx, config.StoreConfig{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

func TestDataSourceName(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StoreConfig
		want string
	}{
		{
			name: "default busy timeout",
			cfg:  config.StoreConfig{Path: "/var/lib/iotf/store.db"},
			want: "file:/var/lib/iotf/store.db?_busy_timeout=5000",
		},
		{
			name: "WAL",
			cfg:  config.StoreConfig{Path: "store.db", WALMode: true, BusyTimeout: 2},
			want: "file:store.db?_busy_timeout=2000&_journal_mode=WAL&_synchronous=NORMAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dataSourceName(tt.cfg); got != tt.want {
				t.Errorf("dataSourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestHealthCheck verifies the integrity check.
func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // Closing to force failure
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on closed database should fail")
	}
}

// TestClose verifies Close is safe on a zero DB.
func TestClose(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB error = %v", err)
	}
}

// TestWithTx verifies commit on success and rollback on error.
func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v BLOB)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	failed := errors.New("abort")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('o.1', x'30')"); err != nil {
			return err
		}
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("WithTx() error = %v, want %v", err, failed)
	}

	if err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('o.2', x'30')")
		return err
	}); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1 (rolled back insert must not persist)", count)
	}
}

// openTestDB opens a WAL database in a temp dir, closed at test cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
