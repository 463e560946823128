package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	msqlite "modernc.org/sqlite"                          // Local SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

type SQLiteRepository struct {
	db *sql.DB
}

// IsRemoteURL reports whether dbURL points at a libSQL/Turso server.
func IsRemoteURL(dbURL string) bool {
	return strings.HasPrefix(dbURL, "libsql://") || strings.HasPrefix(dbURL, "wss://")
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if IsRemoteURL(dbURL) {
		driverName = "libsql"
	}

	dsn := dbURL
	if driverName == "sqlite" {
		dsn = withPragmas(dbURL)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// One connection serializes writers in-process; the busy timeout
		// covers other processes sharing the file.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// localPragmas run on every new connection opened by the modernc driver.
var localPragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)"}

// withPragmas appends _pragma parameters to a modernc DSN, leaving any the
// caller already set.
func withPragmas(dsn string) string {
	var params []string
	for _, p := range localPragmas {
		name, _, _ := strings.Cut(p, "(")
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+p)
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS short_links (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		long_url TEXT NOT NULL,
		short_code TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		clicks INTEGER NOT NULL DEFAULT 0,
		last_clicked_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_short_links_user_created ON short_links(user_id, created_at);

	CREATE TABLE IF NOT EXISTS short_link_monthly_clicks (
		link_id TEXT NOT NULL,
		month TEXT NOT NULL,
		clicks INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (link_id, month),
		FOREIGN KEY(link_id) REFERENCES short_links(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const linkColumns = `id, user_id, long_url, short_code, title, clicks, last_clicked_at, created_at, updated_at`

func scanLink(row scanner) (*domain.ShortLink, error) {
	var link domain.ShortLink
	var lastClicked sql.NullTime

	err := row.Scan(
		&link.ID, &link.User, &link.LongURL, &link.ShortCode, &link.Title,
		&link.Clicks, &lastClicked, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastClicked.Valid {
		t := lastClicked.Time
		link.LastClickedAt = &t
	}
	link.MonthlyClicks = []domain.MonthlyClick{}
	return &link, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, link *domain.ShortLink) error {
	query := `INSERT INTO short_links (id, user_id, long_url, short_code, title, clicks, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, 0, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, link.ID, link.User, link.LongURL, link.ShortCode, link.Title, link.CreatedAt.UTC(), link.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeConflict
		}
		return fmt.Errorf("insert short link: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByShortCode(ctx context.Context, code string) (*domain.ShortLink, error) {
	return getOne(ctx, r.db, `SELECT `+linkColumns+` FROM short_links WHERE short_code = ?`, code)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*domain.ShortLink, error) {
	return getOne(ctx, r.db, `SELECT `+linkColumns+` FROM short_links WHERE id = ?`, id)
}

func getOne(ctx context.Context, q querier, query string, arg any) (*domain.ShortLink, error) {
	link, err := scanLink(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT month, clicks FROM short_link_monthly_clicks WHERE link_id = ? ORDER BY rowid`, link.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var mc domain.MonthlyClick
		if err := rows.Scan(&mc.Month, &mc.Clicks); err != nil {
			return nil, err
		}
		link.MonthlyClicks = append(link.MonthlyClicks, mc)
	}
	return link, rows.Err()
}

func (r *SQLiteRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM short_links WHERE short_code = ?)`, code).Scan(&exists)
	return exists, err
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, owner string) ([]domain.ShortLink, error) {
	query := `SELECT ` + linkColumns + ` FROM short_links WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	links, err := r.queryLinks(ctx, query, owner)
	if err != nil {
		return nil, err
	}

	monthly := `SELECT m.link_id, m.month, m.clicks
				FROM short_link_monthly_clicks m
				JOIN short_links l ON l.id = m.link_id
				WHERE l.user_id = ?
				ORDER BY m.rowid`
	if err := r.attachMonthly(ctx, links, monthly, owner); err != nil {
		return nil, err
	}
	return links, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id, owner string, patch domain.LinkPatch) (*domain.ShortLink, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// NULL keeps the stored column
	query := `UPDATE short_links
			  SET long_url = COALESCE(?, long_url), short_code = COALESCE(?, short_code), title = COALESCE(?, title), updated_at = ?
			  WHERE id = ? AND user_id = ?`
	res, err := tx.ExecContext(ctx, query, patch.LongURL, patch.ShortCode, patch.Title, patch.UpdatedAt.UTC(), id, owner)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrCodeConflict
		}
		return nil, fmt.Errorf("update short link: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	link, err := getOne(ctx, tx, `SELECT `+linkColumns+` FROM short_links WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return link, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id, owner string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM short_links WHERE id = ? AND user_id = ?`, id, owner)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	// foreign_keys is a per-connection pragma, so do not rely on the cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM short_link_monthly_clicks WHERE link_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) RecordClick(ctx context.Context, code string, at time.Time) (*domain.ShortLink, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// 1. Increment Link Clicks Counter (Atomic)
	res, err := tx.ExecContext(ctx, `UPDATE short_links SET clicks = clicks + 1, last_clicked_at = ? WHERE short_code = ?`, at.UTC(), code)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	// 2. Upsert the monthly bucket
	upsert := `INSERT INTO short_link_monthly_clicks (link_id, month, clicks)
			   SELECT id, ?, 1 FROM short_links WHERE short_code = ?
			   ON CONFLICT(link_id, month) DO UPDATE SET clicks = clicks + 1`
	if _, err := tx.ExecContext(ctx, upsert, domain.MonthLabel(at), code); err != nil {
		return nil, err
	}

	link, err := getOne(ctx, tx, `SELECT `+linkColumns+` FROM short_links WHERE short_code = ?`, code)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return link, nil
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.ShortLink, error) {
	links, err := r.queryLinks(ctx, `SELECT `+linkColumns+` FROM short_links ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	if err := r.attachMonthly(ctx, links, `SELECT link_id, month, clicks FROM short_link_monthly_clicks ORDER BY rowid`); err != nil {
		return nil, err
	}
	return links, nil
}

// Restore inserts a full record, counters and buckets included.
func (r *SQLiteRepository) Restore(ctx context.Context, link *domain.ShortLink) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lastClicked any
	if link.LastClickedAt != nil {
		lastClicked = link.LastClickedAt.UTC()
	}

	query := `INSERT INTO short_links (id, user_id, long_url, short_code, title, clicks, last_clicked_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query, link.ID, link.User, link.LongURL, link.ShortCode, link.Title,
		link.Clicks, lastClicked, link.CreatedAt.UTC(), link.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeConflict
		}
		return err
	}

	for _, mc := range link.MonthlyClicks {
		_, err := tx.ExecContext(ctx, `INSERT INTO short_link_monthly_clicks (link_id, month, clicks) VALUES (?, ?, ?)`, link.ID, mc.Month, mc.Clicks)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) queryLinks(ctx context.Context, query string, args ...any) ([]domain.ShortLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []domain.ShortLink{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// attachMonthly fills MonthlyClicks from a (link_id, month, clicks) query.
func (r *SQLiteRepository) attachMonthly(ctx context.Context, links []domain.ShortLink, query string, args ...any) error {
	if len(links) == 0 {
		return nil
	}
	byID := make(map[string]int, len(links))
	for i := range links {
		byID[links[i].ID] = i
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var linkID string
		var mc domain.MonthlyClick
		if err := rows.Scan(&linkID, &mc.Month, &mc.Clicks); err != nil {
			return err
		}
		if i, ok := byID[linkID]; ok {
			links[i].MonthlyClicks = append(links[i].MonthlyClicks, mc)
		}
	}
	return rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	// libSQL surfaces the server message only
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure interface compliance
var _ ports.LinkRepository = (*SQLiteRepository)(nil)
