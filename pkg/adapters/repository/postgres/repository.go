package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PostgresRepository stores short links in PostgreSQL.
// Click counting relies on row locks taken by UPDATE ... SET clicks = clicks + 1
// and on INSERT ... ON CONFLICT for the monthly bucket.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// IsPostgresURL reports whether dbURL selects this backend.
func IsPostgresURL(dbURL string) bool {
	return strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://")
}

// NewPostgresRepository migrates the schema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, dbURL string) (*PostgresRepository, error) {
	if err := Migrate(dbURL); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const linkColumns = `id, user_id, long_url, short_code, title, clicks, last_clicked_at, created_at, updated_at`

func scanLink(row pgx.Row) (*domain.ShortLink, error) {
	var link domain.ShortLink
	err := row.Scan(
		&link.ID, &link.User, &link.LongURL, &link.ShortCode, &link.Title,
		&link.Clicks, &link.LastClickedAt, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	link.MonthlyClicks = []domain.MonthlyClick{}
	return &link, nil
}

func (r *PostgresRepository) Create(ctx context.Context, link *domain.ShortLink) error {
	query := `INSERT INTO short_links (id, user_id, long_url, short_code, title, clicks, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`

	_, err := r.pool.Exec(ctx, query, link.ID, link.User, link.LongURL, link.ShortCode, link.Title, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeConflict
		}
		return fmt.Errorf("insert short link: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByShortCode(ctx context.Context, code string) (*domain.ShortLink, error) {
	return getOne(ctx, r.pool, `SELECT `+linkColumns+` FROM short_links WHERE short_code = $1`, code)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.ShortLink, error) {
	return getOne(ctx, r.pool, `SELECT `+linkColumns+` FROM short_links WHERE id = $1`, id)
}

func getOne(ctx context.Context, q querier, query string, arg any) (*domain.ShortLink, error) {
	link, err := scanLink(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT month, clicks FROM short_link_monthly_clicks WHERE link_id = $1 ORDER BY seq`, link.ID)
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

func (r *PostgresRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM short_links WHERE short_code = $1)`, code).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]domain.ShortLink, error) {
	links, err := r.queryLinks(ctx, `SELECT `+linkColumns+` FROM short_links WHERE user_id = $1 ORDER BY created_at DESC, id`, owner)
	if err != nil {
		return nil, err
	}
	monthly := `SELECT m.link_id, m.month, m.clicks
				FROM short_link_monthly_clicks m
				JOIN short_links l ON l.id = m.link_id
				WHERE l.user_id = $1
				ORDER BY m.seq`
	if err := r.attachMonthly(ctx, links, monthly, owner); err != nil {
		return nil, err
	}
	return links, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id, owner string, patch domain.LinkPatch) (*domain.ShortLink, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// NULL keeps the stored column
	query := `UPDATE short_links
			  SET long_url = COALESCE($1::text, long_url), short_code = COALESCE($2::text, short_code),
			      title = COALESCE($3::text, title), updated_at = $4
			  WHERE id = $5 AND user_id = $6`
	tag, err := tx.Exec(ctx, query, patch.LongURL, patch.ShortCode, patch.Title, patch.UpdatedAt, id, owner)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrCodeConflict
		}
		return nil, fmt.Errorf("update short link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}

	link, err := getOne(ctx, tx, `SELECT `+linkColumns+` FROM short_links WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return link, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, owner string) error {
	// monthly rows go with the ON DELETE CASCADE
	tag, err := r.pool.Exec(ctx, `DELETE FROM short_links WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) RecordClick(ctx context.Context, code string, at time.Time) (*domain.ShortLink, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var linkID string
	err = tx.QueryRow(ctx,
		`UPDATE short_links SET clicks = clicks + 1, last_clicked_at = $1 WHERE short_code = $2 RETURNING id`,
		at, code,
	).Scan(&linkID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	upsert := `INSERT INTO short_link_monthly_clicks (link_id, month, clicks) VALUES ($1, $2, 1)
			   ON CONFLICT (link_id, month) DO UPDATE SET clicks = short_link_monthly_clicks.clicks + 1`
	if _, err := tx.Exec(ctx, upsert, linkID, domain.MonthLabel(at)); err != nil {
		return nil, err
	}

	link, err := getOne(ctx, tx, `SELECT `+linkColumns+` FROM short_links WHERE id = $1`, linkID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return link, nil
}

func (r *PostgresRepository) Dump(ctx context.Context) ([]domain.ShortLink, error) {
	links, err := r.queryLinks(ctx, `SELECT `+linkColumns+` FROM short_links ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	if err := r.attachMonthly(ctx, links, `SELECT link_id, month, clicks FROM short_link_monthly_clicks ORDER BY seq`); err != nil {
		return nil, err
	}
	return links, nil
}

func (r *PostgresRepository) Restore(ctx context.Context, link *domain.ShortLink) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO short_links (id, user_id, long_url, short_code, title, clicks, last_clicked_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.Exec(ctx, query, link.ID, link.User, link.LongURL, link.ShortCode, link.Title,
		link.Clicks, link.LastClickedAt, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeConflict
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, mc := range link.MonthlyClicks {
		batch.Queue(`INSERT INTO short_link_monthly_clicks (link_id, month, clicks) VALUES ($1, $2, $3)`, link.ID, mc.Month, mc.Clicks)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) queryLinks(ctx context.Context, query string, args ...any) ([]domain.ShortLink, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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

func (r *PostgresRepository) attachMonthly(ctx context.Context, links []domain.ShortLink, query string, args ...any) error {
	if len(links) == 0 {
		return nil
	}
	byID := make(map[string]int, len(links))
	for i := range links {
		byID[links[i].ID] = i
	}

	rows, err := r.pool.Query(ctx, query, args...)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Ensure interface compliance
var _ ports.LinkRepository = (*PostgresRepository)(nil)
