package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// MemoryPath opens a private in-memory database. Used by tests.
const MemoryPath = ":memory:"

const (
	dirMode  os.FileMode = 0o750
	fileMode os.FileMode = 0o600

	pingTimeout = 5 * time.Second
)

// Config describes how to open the store.
type Config struct {
	// Path is the SQLite file; missing parent directories are created.
	Path string

	// WALMode switches the journal to write-ahead logging. Ignored for
	// MemoryPath.
	WALMode bool

	// BusyTimeout is how long a statement waits on a lock, in seconds.
	BusyTimeout int
}

func (c Config) inMemory() bool { return c.Path == MemoryPath }

// dsn builds the go-sqlite3 connection string for c.
func (c Config) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(c.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	if c.WALMode && !c.inMemory() {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + c.Path + "?" + q.Encode()
}

// DB is the store. The embedded *sql.DB is usable directly.
type DB struct {
	*sql.DB
	path string
}

// Open opens the store described by cfg and pings it.
func Open(cfg Config) (*DB, error) {
	if !cfg.inMemory() {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer, and an in-memory database disappears with
	// its last connection, so the pool is pinned to a single connection
	// that is never recycled.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Path, err)
	}

	if !cfg.inMemory() {
		_ = os.Chmod(cfg.Path, fileMode) //nolint:errcheck // created lazily by the first write
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the store. It is safe on a DB whose handle is nil.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path is the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck reports whether the store answers a query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// ExecContext is sql.DB.ExecContext with the error wrapped.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return res, nil
}

// BeginTx is sql.DB.BeginTx with the error wrapped.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}
