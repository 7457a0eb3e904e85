//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// setupPostgres starts a throwaway Postgres and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/catalog_test?sslmode=disable", host, port.Port())
}

func TestPostgres_ContentRepository(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	db, dialect, err := Open(ctx, Options{Driver: "postgres", DSN: dsn, MaxOpenConns: 5}, observability.NopLogger())
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, DialectPostgres, dialect)

	_, err = Migrate(ctx, db, dialect)
	require.NoError(t, err)

	items, err := LoadFixtures("testdata/catalog.yaml")
	require.NoError(t, err)
	repo := NewContentRepository(db, dialect)
	require.NoError(t, repo.UpsertBatch(ctx, items, nil))
	// upserting twice must not conflict
	require.NoError(t, repo.UpsertBatch(ctx, items, nil))

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	events, err := repo.Search(ctx, content.SearchQuery{Keywords: []string{"bluebell", "workshops"}, Kind: content.KindEvent, UpcomingAfter: now, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"bluebell-woodland-2026-04-25", "bluebell-woodland-2026-05-02"}, itemIDs(events))

	articles, err := repo.Search(ctx, content.SearchQuery{Kind: content.KindArticle})
	require.NoError(t, err)
	assert.Len(t, articles, 4)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[content.KindEvent])
	require.NoError(t, repo.Ping(ctx))
}
