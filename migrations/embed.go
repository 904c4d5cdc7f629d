// Package migrations embeds the Postgres schema of the reception journal.
package migrations

import "embed"

// Files holds the ordered *.sql migrations.
//
//go:embed *.sql
var Files embed.FS
