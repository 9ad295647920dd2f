package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"hyperbot/internal/models"
	"hyperbot/internal/storage"
)

// setupTestDB starts a PostgreSQL container with migrations applied. Skips when Docker is unavailable.
func setupTestDB(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Migrate(ctx))

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return pool
}

func TestScaleOrderStore_Postgres(t *testing.T) {
	pool := setupTestDB(t)
	store := NewScaleOrderStore(pool)
	ctx := context.Background()

	older := sampleScaleOrder()
	newer := sampleScaleOrder()
	newer.ID = "scale-2"
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)
	newer.UpdatedAt = newer.CreatedAt

	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	got, err := store.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.Legs, got.Legs)
	assert.Equal(t, older.OrderIDs, got.OrderIDs)
	assert.Equal(t, models.DistributionGeometric, got.DistributionType)
	assert.True(t, older.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.CompletedAt)

	avg := 51500.0
	completed := older.CreatedAt.Add(time.Hour)
	older.Status = models.ScaleOrderCompleted
	older.OrdersFilled = 2
	older.TotalFilledSize = older.TotalCoinSize
	older.AverageFillPrice = &avg
	older.CompletedAt = &completed
	require.NoError(t, store.Save(ctx, older))

	got, err = store.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScaleOrderCompleted, got.Status)
	require.NotNil(t, got.AverageFillPrice)
	assert.InDelta(t, avg, *got.AverageFillPrice, 1e-9)
	require.NotNil(t, got.CompletedAt)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID, "newest first")

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
