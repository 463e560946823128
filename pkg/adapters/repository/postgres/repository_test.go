package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

// setupPostgres starts a throwaway PostgreSQL and returns a migrated repository.
func setupPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	tc.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tinylink"),
		tcpostgres.WithUsername("tinylink"),
		tcpostgres.WithPassword("tinylink"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	// a second run must be a no-op
	require.NoError(t, Migrate(dsn))
	return repo
}

func newLink(owner, code string, created time.Time) *domain.ShortLink {
	return &domain.ShortLink{
		ID:        uuid.NewString(),
		User:      owner,
		LongURL:   "https://example.com/" + code,
		ShortCode: code,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestPostgresRepository(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("create conflict and lookup", func(t *testing.T) {
		link := newLink("owner", "pg0001", base)
		require.NoError(t, repo.Create(ctx, link))
		assert.ErrorIs(t, repo.Create(ctx, newLink("other", "pg0001", base)), domain.ErrCodeConflict)

		got, err := repo.GetByShortCode(ctx, "pg0001")
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Nil(t, got.LastClickedAt)
		assert.Empty(t, got.MonthlyClicks)

		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		exists, err := repo.CodeExists(ctx, "pg0001")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("concurrent clicks", func(t *testing.T) {
		link := newLink("owner", "pg0002", base.Add(time.Minute))
		require.NoError(t, repo.Create(ctx, link))

		const hits = 50
		at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		var wg sync.WaitGroup
		for i := 0; i < hits; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordClick(ctx, "pg0002", at)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(hits), got.Clicks)
		assert.Equal(t, []domain.MonthlyClick{{Month: "Jun 2026", Clicks: hits}}, got.MonthlyClicks)

		_, err = repo.RecordClick(ctx, "nope00", at)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list update delete", func(t *testing.T) {
		older := newLink("lister", "pg0003", base)
		newer := newLink("lister", "pg0004", base.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, older))
		require.NoError(t, repo.Create(ctx, newer))

		links, err := repo.ListByOwner(ctx, "lister")
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "pg0004", links[0].ShortCode)

		taken, free := "pg0003", "pg0005"
		_, err = repo.Update(ctx, newer.ID, "lister", domain.LinkPatch{ShortCode: &taken, UpdatedAt: base})
		assert.ErrorIs(t, err, domain.ErrCodeConflict)
		updated, err := repo.Update(ctx, newer.ID, "lister", domain.LinkPatch{ShortCode: &free, UpdatedAt: base})
		require.NoError(t, err)
		assert.Equal(t, "pg0005", updated.ShortCode)
		assert.Equal(t, newer.LongURL, updated.LongURL, "absent fields keep their value")

		_, err = repo.Update(ctx, newer.ID, "intruder", domain.LinkPatch{ShortCode: &free, UpdatedAt: base})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.RecordClick(ctx, "pg0005", base)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.Delete(ctx, newer.ID, "intruder"), domain.ErrNotFound)
		require.NoError(t, repo.Delete(ctx, newer.ID, "lister"))
		_, err = repo.GetByShortCode(ctx, "pg0005")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("dump and restore", func(t *testing.T) {
		link := newLink("dumper", "pg0006", base)
		require.NoError(t, repo.Create(ctx, link))
		_, err := repo.RecordClick(ctx, "pg0006", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		dumped, err := repo.Dump(ctx)
		require.NoError(t, err)

		var found *domain.ShortLink
		for i := range dumped {
			if dumped[i].ID == link.ID {
				found = &dumped[i]
			}
		}
		require.NotNil(t, found)
		assert.ErrorIs(t, repo.Restore(ctx, found), domain.ErrCodeConflict)

		require.NoError(t, repo.Delete(ctx, link.ID, "dumper"))
		require.NoError(t, repo.Restore(ctx, found))

		got, err := repo.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Clicks)
		assert.Equal(t, []domain.MonthlyClick{{Month: "Feb 2026", Clicks: 1}}, got.MonthlyClicks)
	})
}

func TestIsPostgresURL(t *testing.T) {
	assert.True(t, IsPostgresURL("postgres://u:p@localhost:5432/db"))
	assert.True(t, IsPostgresURL("postgresql://localhost/db"))
	assert.False(t, IsPostgresURL("file:db.sqlite"))
	assert.False(t, IsPostgresURL("libsql://db.turso.io"))
}
