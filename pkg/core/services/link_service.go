package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

var customCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// reservedCodes would be shadowed by fixed routes.
var reservedCodes = map[string]struct{}{
	"shortlink": {},
	"auth":      {},
	"healthz":   {},
	"api":       {},
}

type LinkService struct {
	repo    ports.LinkRepository
	codes   *CodeGenerator
	nowFunc func() time.Time
}

func NewLinkService(repo ports.LinkRepository) *LinkService {
	return &LinkService{
		repo:    repo,
		codes:   NewCodeGenerator(repo),
		nowFunc: time.Now,
	}
}

func (s *LinkService) Create(ctx context.Context, owner string, in domain.CreateLinkInput) (*domain.ShortLink, error) {
	longURL, err := normalizeLongURL(in.LongURL)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	link := &domain.ShortLink{
		ID:            uuid.NewString(),
		User:          owner,
		LongURL:       longURL,
		Title:         in.Title,
		MonthlyClicks: []domain.MonthlyClick{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if in.ShortCode != "" {
		if err := validateCustomCode(in.ShortCode); err != nil {
			return nil, err
		}
		exists, err := s.repo.CodeExists(ctx, in.ShortCode)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrCodeConflict
		}
		link.ShortCode = in.ShortCode
		// the unique constraint still decides races lost after the pre-check
		if err := s.repo.Create(ctx, link); err != nil {
			return nil, err
		}
		return link, nil
	}

	// A generated code can still lose a race at insert time; try a fresh one.
	for i := 0; i < MaxGenerateAttempts; i++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}
		link.ShortCode = code
		err = s.repo.Create(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, domain.ErrCodeConflict) {
			return nil, err
		}
	}
	return nil, domain.ErrCodeGenerationExhausted
}

func (s *LinkService) Update(ctx context.Context, id, owner string, in domain.UpdateLinkInput) (*domain.ShortLink, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.User != owner {
		return nil, domain.ErrNotFound
	}

	patch := domain.LinkPatch{Title: in.Title, UpdatedAt: s.nowFunc().UTC()}
	if in.ShortCode != nil && *in.ShortCode != current.ShortCode {
		if err := validateCustomCode(*in.ShortCode); err != nil {
			return nil, err
		}
		exists, err := s.repo.CodeExists(ctx, *in.ShortCode)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrCodeConflict
		}
		patch.ShortCode = in.ShortCode
	}
	if in.LongURL != nil {
		longURL, err := normalizeLongURL(*in.LongURL)
		if err != nil {
			return nil, err
		}
		patch.LongURL = &longURL
	}

	// nil patch fields keep their stored value
	return s.repo.Update(ctx, id, owner, patch)
}

func (s *LinkService) Delete(ctx context.Context, id, owner string) error {
	return s.repo.Delete(ctx, id, owner)
}

// ListWithStats returns the owner's links newest first together with totals.
func (s *LinkService) ListWithStats(ctx context.Context, owner, baseURL string) ([]domain.LinkSummary, domain.UserStats, error) {
	links, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, domain.UserStats{}, err
	}
	return Summaries(links, baseURL), SummarizeLinks(links, baseURL), nil
}

// Detail returns the link with monthlyClicks expanded to the current year.
// No ownership check: knowing the id is enough to read it.
func (s *LinkService) Detail(ctx context.Context, id string) (*domain.ShortLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := *link
	view.MonthlyClicks = MonthlySeries(link, s.nowFunc().Year())
	return &view, nil
}

// Redirect resolves code to its destination, then records the click.
// Click accounting errors are logged and never fail the redirect.
func (s *LinkService) Redirect(ctx context.Context, code string) (string, error) {
	link, err := s.repo.GetByShortCode(ctx, code)
	if err != nil {
		return "", err
	}

	if _, err := s.repo.RecordClick(context.WithoutCancel(ctx), code, s.nowFunc()); err != nil {
		log.Warn().Err(err).Str("short_code", code).Msg("failed to record click")
	}
	return link.LongURL, nil
}

// normalizeLongURL trims raw and requires an absolute http or https URL.
func normalizeLongURL(raw string) (string, error) {
	longURL := strings.TrimSpace(raw)
	if longURL == "" {
		return "", fmt.Errorf("%w: longUrl is required", domain.ErrValidation)
	}
	u, err := url.Parse(longURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: longUrl must be an absolute http or https URL", domain.ErrValidation)
	}
	return longURL, nil
}

func validateCustomCode(code string) error {
	if !customCodeRe.MatchString(code) {
		return fmt.Errorf("%w: short code must be 3-64 letters, digits, '-' or '_'", domain.ErrValidation)
	}
	if _, ok := reservedCodes[strings.ToLower(code)]; ok {
		return fmt.Errorf("%w: short code %q is reserved", domain.ErrValidation, code)
	}
	return nil
}

// Ensure interface compliance
var _ ports.LinkService = (*LinkService)(nil)
