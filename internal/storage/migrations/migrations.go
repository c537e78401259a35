// Package migrations embeds the schema migrations goose applies when a
// collection file is opened.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
