// Package database owns the controller's SQLite store. The door event
// history and the fault ledger live here; embedded migrations bring the
// schema up to date at boot.
//
// DB embeds sql.DB, so repositories query the handle directly. The
// wrapper itself only adds what database/sql lacks: directory and
// permission setup on open (the history file is 0600, since it reveals
// occupancy), a single-connection pool matched to SQLite's one-writer
// model, the migration runner and a health probe.
//
//	db, err := database.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Schema changes ship forward only. New columns are nullable or carry
// defaults, nothing is dropped or renamed, and Rollback exists purely
// for development against fixture schemas.
package database
