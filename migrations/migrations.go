// Package migrations embeds the PostgreSQL schema for the pgvector index.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
