package domain

import "time"

// Display defaults used by the dashboard
const (
	NoData      = "No data"
	NoActivity  = "No activity"
	NeverLabel  = "Never"
	UntitledTag = "Untitled"
)

// UserStats summarizes all links owned by one user
type UserStats struct {
	TotalLinks  int    `json:"totalLinks"`
	TotalClicks int64  `json:"totalClicks"`
	Popular     string `json:"popular"`
	Activity    string `json:"activity"`
}

// LinkSummary is the list-view projection of a ShortLink
type LinkSummary struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Short          string     `json:"short"`
	Long           string     `json:"long"`
	Clicks         int64      `json:"clicks"`
	LastClicked    string     `json:"lastClicked"`
	RawLastClicked *time.Time `json:"rawLastClicked"`
}
