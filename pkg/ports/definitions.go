package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

// LinkRepository defines storage operations for short links.
// Implementations return domain.ErrNotFound for missing records and
// domain.ErrCodeConflict when the short_code unique constraint rejects a write.
type LinkRepository interface {
	Create(ctx context.Context, link *domain.ShortLink) error
	GetByShortCode(ctx context.Context, code string) (*domain.ShortLink, error)
	GetByID(ctx context.Context, id string) (*domain.ShortLink, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.ShortLink, error)
	// Update applies only the non-nil patch fields to the link with id owned
	// by owner and returns the stored result.
	Update(ctx context.Context, id, owner string, patch domain.LinkPatch) (*domain.ShortLink, error)
	Delete(ctx context.Context, id, owner string) error

	// RecordClick bumps clicks, last_clicked_at and the monthly bucket for at
	// in a single transaction.
	RecordClick(ctx context.Context, code string, at time.Time) (*domain.ShortLink, error)

	// Migration
	Dump(ctx context.Context) ([]domain.ShortLink, error)
	Restore(ctx context.Context, link *domain.ShortLink) error

	Close() error
}

// LinkService defines the business logic operations
type LinkService interface {
	Create(ctx context.Context, owner string, in domain.CreateLinkInput) (*domain.ShortLink, error)
	Update(ctx context.Context, id, owner string, in domain.UpdateLinkInput) (*domain.ShortLink, error)
	Delete(ctx context.Context, id, owner string) error
	ListWithStats(ctx context.Context, owner, baseURL string) ([]domain.LinkSummary, domain.UserStats, error)
	Detail(ctx context.Context, id string) (*domain.ShortLink, error)
	Redirect(ctx context.Context, code string) (string, error)
}
