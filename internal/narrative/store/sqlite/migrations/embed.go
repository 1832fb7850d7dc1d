// Package migrations embeds the SQL migration scripts for the SQLite
// state store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
