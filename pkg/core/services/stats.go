package services

import (
	"fmt"
	"time"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

// clickTimeLayout renders like "16 Oct 2026, 09:05 pm"
const clickTimeLayout = "02 Jan 2006, 03:04 pm"

// FormatClickTime renders a last-click timestamp in server local time.
func FormatClickTime(t *time.Time) string {
	if t == nil {
		return domain.NeverLabel
	}
	return t.Local().Format(clickTimeLayout)
}

// ShortURL joins the public base (scheme://host) with a code.
func ShortURL(baseURL, code string) string {
	return baseURL + "/" + code
}

// Summaries projects links into the dashboard list view, keeping input order.
func Summaries(links []domain.ShortLink, baseURL string) []domain.LinkSummary {
	out := make([]domain.LinkSummary, 0, len(links))
	for _, l := range links {
		title := l.Title
		if title == "" {
			title = domain.UntitledTag
		}
		out = append(out, domain.LinkSummary{
			ID:             l.ID,
			Title:          title,
			Short:          ShortURL(baseURL, l.ShortCode),
			Long:           l.LongURL,
			Clicks:         l.Clicks,
			LastClicked:    FormatClickTime(l.LastClickedAt),
			RawLastClicked: l.LastClickedAt,
		})
	}
	return out
}

// SummarizeLinks computes dashboard totals. Ties on clicks go to the
// earliest link in input order.
func SummarizeLinks(links []domain.ShortLink, baseURL string) domain.UserStats {
	stats := domain.UserStats{
		TotalLinks: len(links),
		Popular:    domain.NoData,
		Activity:   domain.NoActivity,
	}

	var popular *domain.ShortLink
	var latest *time.Time
	for i := range links {
		l := &links[i]
		stats.TotalClicks += l.Clicks
		if popular == nil || l.Clicks > popular.Clicks {
			popular = l
		}
		if l.LastClickedAt != nil && (latest == nil || l.LastClickedAt.After(*latest)) {
			latest = l.LastClickedAt
		}
	}

	if popular != nil {
		stats.Popular = ShortURL(baseURL, popular.ShortCode)
	}
	if latest != nil {
		stats.Activity = FormatClickTime(latest)
	}
	return stats
}

// MonthlySeries expands the sparse stored buckets into Jan..Dec of year.
func MonthlySeries(link *domain.ShortLink, year int) []domain.MonthlyClick {
	series := make([]domain.MonthlyClick, 12)
	index := make(map[string]int, 12)
	for m := time.January; m <= time.December; m++ {
		label := fmt.Sprintf("%s %d", m.String()[:3], year)
		series[m-1] = domain.MonthlyClick{Month: label}
		index[label] = int(m - 1)
	}
	for _, mc := range link.MonthlyClicks {
		if i, ok := index[mc.Month]; ok {
			series[i].Clicks = mc.Clicks
		}
	}
	return series
}
