package migrations

import "embed"

// FS contains embedded SQLite migrations for the game registry.
//
//go:embed *.sql
var FS embed.FS
