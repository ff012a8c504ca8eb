package migrations

import "github.com/uptrace/bun/migrate"

// Migrations collects every schema migration; each file registers itself
// from init and is named after its version.
var Migrations = migrate.NewMigrations()
