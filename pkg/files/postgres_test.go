package files

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

// setupPostgres starts a throwaway PostgreSQL container and returns a
// migrated store connected to it.
func setupPostgres(t *testing.T, ctx context.Context) *PostgresStore {
	t.Helper()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("shareloft_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	store, err := NewPostgresStore(ctx, &PostgresConfig{
		ConnectionString: connStr,
		MaxConnections:   5,
		ConnectTimeout:   30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create postgres store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupPostgres(t, ctx)

	f := testFile("f1", "u1")
	require.NoError(t, store.Put(ctx, f))

	got, err := store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, f.Filename, got.Filename)
	assert.Equal(t, f.Tags, got.Tags)
	assert.Equal(t, f.Metadata, got.Metadata)
	assert.WithinDuration(t, f.CreatedAt, got.CreatedAt, time.Second)

	// upsert replaces the row
	f.Filename = "renamed.txt"
	require.NoError(t, store.Put(ctx, f))
	got, err = store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", got.Filename)

	require.NoError(t, store.Delete(ctx, "f1"))
	_, err = store.Get(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreQueries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupPostgres(t, ctx)

	a := testFile("f1", "u1")
	a.ParentDirectory = "/docs"
	a.IsPublic = true
	b := testFile("f2", "u1")
	b.ParentDirectory = "/photos"
	c := testFile("f3", "u2")

	for _, f := range []*File{a, b, c} {
		require.NoError(t, store.Put(ctx, f))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owned, err := store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	public, err := store.ListPublic(ctx)
	require.NoError(t, err)
	assert.Len(t, public, 1)
	assert.Equal(t, "f1", public[0].ID)

	docs, err := store.ListByDirectory(ctx, "u1", "/docs")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "f1", docs[0].ID)

	// no owner narrows a directory listing to its public records
	docs, err = store.ListByDirectory(ctx, "", "/docs")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	docs, err = store.ListByDirectory(ctx, "", "/photos")
	require.NoError(t, err)
	assert.Empty(t, docs)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalFiles)
	assert.Equal(t, int64(1), stats.PublicFiles)
}
