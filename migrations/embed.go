// Package migrations embeds the invocca database migrations.
package migrations

import "embed"

// Postgres holds the PostgreSQL migrations under postgres/.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// PostgresDir is the directory within Postgres holding the migration files.
const PostgresDir = "postgres"
