package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Run("creates file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "synthd.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := db.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := Open(Config{Path: MemoryPath, WALMode: true})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		ctx := context.Background()
		if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("CREATE error = %v", err)
		}
		// The table is still there on the next statement.
		if _, err := db.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestBeginTx(t *testing.T) {
	tests := []struct {
		name      string
		commit    bool
		wantCount int
	}{
		{"commit", true, 1},
		{"rollback", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			ctx := context.Background()

			if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
				t.Fatalf("CREATE TABLE error = %v", err)
			}

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "x"); err != nil {
				t.Fatalf("INSERT error = %v", err)
			}
			if tt.commit {
				err = tx.Commit()
			} else {
				err = tx.Rollback()
			}
			if err != nil {
				t.Fatalf("finishing transaction: %v", err)
			}

			var count int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_test").Scan(&count); err != nil {
				t.Fatalf("SELECT error = %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("rows = %d, want %d", count, tt.wantCount)
			}
		})
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1", stats.MaxOpenConnections)
	}
}

// openTestDB opens an in-memory database closed at test end.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{Path: MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			"file with WAL",
			Config{Path: "/var/lib/synthd/synthd.db", WALMode: true, BusyTimeout: 5},
			"file:/var/lib/synthd/synthd.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		},
		{
			"memory ignores WAL",
			Config{Path: MemoryPath, WALMode: true},
			"file::memory:?_busy_timeout=0&_foreign_keys=on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.dsn(); got != tt.want {
				t.Errorf("dsn() = %q, want %q", got, tt.want)
			}
		})
	}
}
