// Package migrations embeds the SQL files that create the shard schemas.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
