package domain

import "time"

// ShortLink maps a public short code to a destination URL owned by one user
type ShortLink struct {
	ID            string         `json:"id"`
	User          string         `json:"user"`
	LongURL       string         `json:"longUrl"`
	ShortCode     string         `json:"shortCode"`
	Title         string         `json:"title,omitempty"`
	Clicks        int64          `json:"clicks"`
	LastClickedAt *time.Time     `json:"lastClickedAt,omitempty"`
	MonthlyClicks []MonthlyClick `json:"monthlyClicks"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// MonthlyClick is a click bucket keyed by a "Jan 2006" label
type MonthlyClick struct {
	Month  string `json:"month"`
	Clicks int64  `json:"clicks"`
}

// MonthLabel returns the bucket label for t in t's own location.
func MonthLabel(t time.Time) string {
	return t.Format("Jan 2006")
}

// CreateLinkInput payload for a new link. ShortCode is optional.
type CreateLinkInput struct {
	LongURL   string `json:"longUrl"`
	ShortCode string `json:"shortCode,omitempty"`
	Title     string `json:"title,omitempty"`
}

// UpdateLinkInput carries a partial update; nil fields are left untouched.
type UpdateLinkInput struct {
	LongURL   *string `json:"longUrl,omitempty"`
	ShortCode *string `json:"shortCode,omitempty"`
	Title     *string `json:"title,omitempty"`
}

// LinkPatch is a validated partial update for the store. Nil fields keep
// their stored value.
type LinkPatch struct {
	LongURL   *string
	ShortCode *string
	Title     *string
	UpdatedAt time.Time
}
