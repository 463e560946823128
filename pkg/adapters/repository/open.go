package repository

import (
	"context"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository/postgres"
	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// Open picks the Link Store backend from the DATABASE_URL scheme:
// postgres:// and postgresql:// use PostgreSQL, anything else goes to
// SQLite (local file, :memory:) or libSQL (libsql://, wss://).
func Open(ctx context.Context, dbURL string) (ports.LinkRepository, error) {
	if postgres.IsPostgresURL(dbURL) {
		return postgres.NewPostgresRepository(ctx, dbURL)
	}
	return sqlite.NewSQLiteRepository(dbURL)
}
