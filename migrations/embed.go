// Package migrations embeds the database schema migration files.
package migrations

import "embed"

// FS contains all migration SQL files, applied by internal/migrator.
//
//go:embed *.sql
var FS embed.FS
