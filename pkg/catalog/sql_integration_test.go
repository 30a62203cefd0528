//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresStore starts a PostgreSQL container and opens a catalog store on it
func setupPostgresStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenSQLStore(ctx, DialectPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLStore_Postgres(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	t.Run("replace and find", func(t *testing.T) {
		testReplaceAndFind(t, store)
	})

	// Migrate is idempotent
	require.NoError(t, store.Migrate(ctx))

	t.Run("synchronizer round trip", func(t *testing.T) {
		s := NewSynchronizer(store, SyncConfig{})
		require.NoError(t, s.Sync(ctx, OpCreate, "c1", map[string]interface{}{"name": "gamma"}))
		require.NoError(t, s.Sync(ctx, OpDisable, "c1", nil))

		rec, err := store.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.False(t, rec.Enabled)

		require.NoError(t, s.Sync(ctx, OpDelete, "c1", nil))
		_, err = store.FindByID(ctx, "c1")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}
