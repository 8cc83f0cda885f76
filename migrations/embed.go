// Package migrations embeds the versioned SQL files applied by migration.Runner.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
