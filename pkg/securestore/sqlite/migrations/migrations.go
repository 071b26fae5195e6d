// Package migrations embeds the schema migration files for the sqlite
// securestore driver.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
