// Package database provides the SQLite store behind the node registry.
//
// It opens the database with WAL mode and a busy timeout, limits the pool
// to a single writer, and applies embedded schema migrations:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a default,
// and every .up.sql should ship with a .down.sql.
package database
