package sqlite

import (
	"context"
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
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

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	link := newLink("owner", "abc123", created)
	link.Title = "Hello"
	require.NoError(t, repo.Create(ctx, link))

	got, err := repo.GetByShortCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, "owner", got.User)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, int64(0), got.Clicks)
	assert.Nil(t, got.LastClickedAt)
	assert.Empty(t, got.MonthlyClicks)
	assert.True(t, got.CreatedAt.Equal(created))

	byID, err := repo.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", byID.ShortCode)

	_, err = repo.GetByShortCode(ctx, "zzz999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	exists, err := repo.CodeExists(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.CodeExists(ctx, "zzz999")
	require.NoError(t, err)
	assert.False(t, exists)

	err = repo.Create(ctx, newLink("other", "abc123", created))
	assert.ErrorIs(t, err, domain.ErrCodeConflict)
}

func TestSQLiteRepository_RecordClick(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	link := newLink("owner", "clk001", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, link))

	feb := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	_, err := repo.RecordClick(ctx, "clk001", feb)
	require.NoError(t, err)
	_, err = repo.RecordClick(ctx, "clk001", mar)
	require.NoError(t, err)
	got, err := repo.RecordClick(ctx, "clk001", mar.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.Clicks)
	require.NotNil(t, got.LastClickedAt)
	assert.True(t, got.LastClickedAt.Equal(mar.Add(time.Hour)))
	assert.Equal(t, []domain.MonthlyClick{
		{Month: domain.MonthLabel(feb), Clicks: 1},
		{Month: domain.MonthLabel(mar), Clicks: 2},
	}, got.MonthlyClicks)

	_, err = repo.RecordClick(ctx, "nope00", mar)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteRepository_RecordClickConcurrent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	link := newLink("owner", "hot001", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, link))

	const hits = 40
	at := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < hits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordClick(ctx, "hot001", at)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(hits), got.Clicks)
	assert.Equal(t, []domain.MonthlyClick{{Month: "Jul 2026", Clicks: hits}}, got.MonthlyClicks)
}

func TestSQLiteRepository_ListByOwner(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := newLink("owner", "old001", base)
	newer := newLink("owner", "new001", base.Add(time.Hour))
	foreign := newLink("someone", "frn001", base.Add(2*time.Hour))
	for _, l := range []*domain.ShortLink{older, newer, foreign} {
		require.NoError(t, repo.Create(ctx, l))
	}
	_, err := repo.RecordClick(ctx, "old001", base)
	require.NoError(t, err)

	links, err := repo.ListByOwner(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "new001", links[0].ShortCode)
	assert.Equal(t, "old001", links[1].ShortCode)
	assert.Empty(t, links[0].MonthlyClicks)
	assert.Equal(t, []domain.MonthlyClick{{Month: "Jan 2026", Clicks: 1}}, links[1].MonthlyClicks)

	none, err := repo.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func strPtr(s string) *string { return &s }

func TestSQLiteRepository_Update(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := newLink("owner", "aaa001", now)
	a.Title = "before"
	b := newLink("owner", "bbb001", now)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	_, err := repo.Update(ctx, a.ID, "owner", domain.LinkPatch{ShortCode: strPtr("bbb001"), UpdatedAt: now})
	assert.ErrorIs(t, err, domain.ErrCodeConflict)

	got, err := repo.Update(ctx, a.ID, "owner", domain.LinkPatch{ShortCode: strPtr("ccc001"), UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "ccc001", got.ShortCode)
	assert.Equal(t, "before", got.Title, "absent fields keep their value")
	assert.Equal(t, a.LongURL, got.LongURL)

	got, err = repo.Update(ctx, a.ID, "owner", domain.LinkPatch{Title: strPtr(""), UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "", got.Title, "an empty string is a value, not absence")
	assert.Equal(t, "ccc001", got.ShortCode)

	_, err = repo.Update(ctx, a.ID, "intruder", domain.LinkPatch{Title: strPtr("x"), UpdatedAt: now})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteRepository_UpdateKeepsConcurrentWrites(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	link := newLink("owner", "cnc001", now)
	require.NoError(t, repo.Create(ctx, link))

	_, err := repo.Update(ctx, link.ID, "owner", domain.LinkPatch{LongURL: strPtr("https://first.example"), UpdatedAt: now})
	require.NoError(t, err)
	got, err := repo.Update(ctx, link.ID, "owner", domain.LinkPatch{Title: strPtr("second"), UpdatedAt: now})
	require.NoError(t, err)

	assert.Equal(t, "https://first.example", got.LongURL)
	assert.Equal(t, "second", got.Title)
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "file:db.sqlite?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", withPragmas("file:db.sqlite"))
	assert.Equal(t, "file:x?mode=memory&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", withPragmas("file:x?mode=memory"))
	assert.Equal(t, "file:db.sqlite?_pragma=busy_timeout(100)&_pragma=journal_mode(WAL)", withPragmas("file:db.sqlite?_pragma=busy_timeout(100)"))
}

func TestSQLiteRepository_PragmasOnEveryConnection(t *testing.T) {
	repo, err := NewSQLiteRepository("file:" + filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	check := func() {
		t.Helper()
		var timeout int
		require.NoError(t, repo.db.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		assert.Equal(t, 5000, timeout)
		var mode string
		require.NoError(t, repo.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
		assert.Equal(t, "wal", mode)
	}
	check()

	// drop the pooled connection; its replacement is configured from the DSN
	conn, err := repo.db.Conn(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, conn.Raw(func(any) error { return driver.ErrBadConn }), driver.ErrBadConn)
	_ = conn.Close()

	check()
	require.NoError(t, repo.Create(ctx, newLink("owner", "prg001", time.Now().UTC())))
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	link := newLink("owner", "del001", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, link))
	_, err := repo.RecordClick(ctx, "del001", time.Now())
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, link.ID, "intruder"), domain.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, link.ID, "owner"))
	assert.ErrorIs(t, repo.Delete(ctx, link.ID, "owner"), domain.ErrNotFound)

	var buckets int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM short_link_monthly_clicks WHERE link_id = ?`, link.ID).Scan(&buckets))
	assert.Zero(t, buckets)

	// the code is free again
	require.NoError(t, repo.Create(ctx, newLink("owner", "del001", time.Now().UTC())))
}

func TestSQLiteRepository_DumpRestore(t *testing.T) {
	src := newRepo(t)
	dst := newRepo(t)
	ctx := context.Background()

	link := newLink("owner", "dmp001", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, src.Create(ctx, link))
	_, err := src.RecordClick(ctx, "dmp001", time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	dumped, err := src.Dump(ctx)
	require.NoError(t, err)
	require.Len(t, dumped, 1)

	require.NoError(t, dst.Restore(ctx, &dumped[0]))
	assert.ErrorIs(t, dst.Restore(ctx, &dumped[0]), domain.ErrCodeConflict)

	got, err := dst.GetByShortCode(ctx, "dmp001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Clicks)
	assert.Equal(t, []domain.MonthlyClick{{Month: "Apr 2026", Clicks: 1}}, got.MonthlyClicks)
	require.NotNil(t, got.LastClickedAt)
}

func TestIsRemoteURL(t *testing.T) {
	assert.True(t, IsRemoteURL("libsql://db.turso.io?authToken=x"))
	assert.True(t, IsRemoteURL("wss://db.turso.io"))
	assert.False(t, IsRemoteURL("file:db.sqlite"))
}
