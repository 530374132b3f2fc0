package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"
)

// ErrMigrationModified is returned when an applied migration's SQL no longer
// matches what was recorded when it ran.
var ErrMigrationModified = errors.New("applied migration has been modified")

// migrationFile matches YYYYMMDD_HHMMSS_description.{up,down}.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([A-Za-z0-9_]+)\.(up|down)\.sql$`)

// Source locates migration files inside a filesystem, usually an embed.FS.
type Source struct {
	FS  fs.FS
	Dir string
}

// Migration is one schema change.
type Migration struct {
	// Version is YYYYMMDD_HHMMSS from the filename.
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum identifies the migration's up SQL.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationRecord is a row in schema_migrations.
type MigrationRecord struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
}

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// Migrate brings the schema up to date with src. Each migration commits on
// its own, so a failure leaves earlier ones applied and a later Migrate
// resumes at the failed one.
func (db *DB) Migrate(ctx context.Context, src Source) error {
	applied, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		return err
	}

	known, err := readMigrations(src)
	if err != nil {
		return err
	}
	byVersion := make(map[string]Migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}
	for _, r := range applied {
		if m, ok := byVersion[r.Version]; ok && m.Checksum() != r.Checksum {
			return fmt.Errorf("%w: %s (%s)", ErrMigrationModified, r.Version, r.Name)
		}
	}

	for _, m := range pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
				m.Version, m.Name, m.Checksum(), time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the newest applied migration. It is a no-op when
// nothing has been applied.
func (db *DB) MigrateDown(ctx context.Context, src Source) error {
	applied, _, err := db.MigrationStatus(ctx, src)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	newest := applied[len(applied)-1]

	known, err := readMigrations(src)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(known, func(m Migration) bool { return m.Version == newest.Version })
	if i < 0 {
		return fmt.Errorf("migration %s is applied but missing from source", newest.Version)
	}
	m := known[i]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s (%s) cannot be reverted: no down SQL", m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("reverting migration %s (%s): %w", m.Version, m.Name, err)
	}
	return nil
}

// MigrationStatus splits src into applied records and pending migrations,
// both oldest first.
func (db *DB) MigrationStatus(ctx context.Context, src Source) (applied []MigrationRecord, pending []Migration, err error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var r MigrationRecord
		var at string
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &at); err != nil {
			return nil, nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		applied = append(applied, r)
		done[r.Version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading schema_migrations: %w", err)
	}

	known, err := readMigrations(src)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range known {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the fn error is the one worth reporting
		return err
	}
	return tx.Commit()
}

// readMigrations loads every migration in src, sorted by version. Files
// that do not follow the naming scheme are ignored; a down file with no up
// file is an error.
func readMigrations(src Source) ([]Migration, error) {
	if src.FS == nil {
		return nil, nil
	}
	dir := src.Dir
	if dir == "" {
		dir = "."
	}

	entries, err := fs.ReadDir(src.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations from %s: %w", dir, err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFile(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(src.FS, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s (%s) has no up file", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFile splits a migration filename into its parts:
// "20261001_120000_lifecycle_events.up.sql" is version "20261001_120000",
// name "lifecycle_events", up.
func parseMigrationFile(filename string) (version, name string, up, ok bool) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false, false
	}
	return m[1], m[2], m[3] == "up", true
}
