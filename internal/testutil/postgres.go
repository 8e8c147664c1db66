// Package testutil starts disposable dependencies for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/MCT-Salman/invocca/internal/dbutil"
	"github.com/MCT-Salman/invocca/migrations"
)

const postgresImage = "postgres:16-alpine"

// NewTestPostgres starts a PostgreSQL container, applies the embedded
// migrations and returns a pool. Everything is torn down with the test.
func NewTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("invocca"),
		tcpostgres.WithUsername("invocca"),
		tcpostgres.WithPassword("invocca"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := dbutil.Connect(ctx, dbutil.PoolConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = dbutil.RunMigrations(ctx, db, migrations.Postgres, migrations.PostgresDir)
	require.NoError(t, err)
	return db
}
