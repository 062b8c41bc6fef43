// Package migrations embeds the SQL schema of the client's local store.
//
// Apply them with:
//
//	db.Migrate(ctx, migrations.FS, migrations.Dir)
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS that holds the migrations.
const Dir = "."
