package migrations

import "embed"

// Files embeds the goose SQL migrations.
//
//go:embed *.sql
var Files embed.FS
