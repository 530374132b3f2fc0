// Package database provides SQLite connectivity for synthd.
//
// It opens the store with WAL mode and a busy timeout, keeps a single
// connection (SQLite has one writer) and applies versioned migrations read
// from any fs.FS, normally the embedded migrations package.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive. Each has a .up.sql file and usually a .down.sql
// file named YYYYMMDD_HHMMSS_description.
package database
