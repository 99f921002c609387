// Package migrations embeds the schema so the server can migrate on startup
// and integration tests can build the same tables.
package migrations

import "embed"

// FS holds the numbered up and down scripts; only *.up.sql files are applied.
//
//go:embed *.up.sql *.down.sql
var FS embed.FS
