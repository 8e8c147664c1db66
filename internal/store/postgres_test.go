//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/internal/testutil"
)

func TestPostgresStore_Ping(t *testing.T) {
	st := NewPostgresStore(testutil.NewTestPostgres(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, st.Ping(ctx))
}

func TestPostgresStore_Contract(t *testing.T) {
	db := testutil.NewTestPostgres(t)

	runContract(t, func(t *testing.T) Store {
		_, err := db.ExecContext(context.Background(), `TRUNCATE
			invocca.ratings, invocca.reports, invocca.invitations, invocca.templates,
			invocca.events, invocca.services, invocca.halls`)
		require.NoError(t, err)
		return NewPostgresStore(db)
	})
}
