// Package migrations embeds the SQLite schema for save slots.
package migrations

import "embed"

// FS holds the ordered migration files.
//
//go:embed *.sql
var FS embed.FS
