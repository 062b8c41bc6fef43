// Package database opens the SQLite file behind the client's persistent
// message store.
//
// The store keeps paho's in-flight QoS 1 and 2 packets across restarts.
// This package owns the file itself: opening it with the configured
// journal mode and busy timeout, applying the embedded migrations, and
// checking its integrity for the client's health check.
//
// The file is created with mode 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Store)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
//	    return err
//	}
package database
