// Package database provides SQLite storage for the skill: site snapshots
// that survive a restart and the command audit trail.
//
// Connections use WAL mode and a busy timeout, and the file is created with
// 0600 permissions. Schema changes live in the migrations package as paired
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql files and are applied with
// Migrate at startup:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
