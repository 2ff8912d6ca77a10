// Package database provides SQLite connectivity for the Teslemetry bridge.
//
// It owns connection setup (WAL mode, busy timeout, foreign keys) and a
// small forward-only migration runner over an fs.FS of
// YYYYMMDD_HHMMSS_description.{up,down}.sql files.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or carry a
// DEFAULT so an older binary can still read the schema.
package database
