package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// cftcPressURL is the CFTC press-release RSS feed.
const cftcPressURL = "https://www.cftc.gov/RSS/RSSGP/rssgp.xml"

// Releases fetches CFTC press releases.
type Releases struct {
	// FeedURL overrides the RSS endpoint; tests point it at a local server.
	FeedURL string

	parser  *gofeed.Parser
	limiter *RateLimiter

	mu        sync.Mutex
	cached    []models.Release
	fetchedAt time.Time
	ttl       time.Duration
}

// NewReleases creates a press-release source.
func NewReleases() *Releases {
	return &Releases{
		FeedURL: cftcPressURL,
		parser:  gofeed.NewParser(),
		limiter: NewRateLimiter(1, time.Second),
		ttl:     15 * time.Minute,
	}
}

// Fetch returns recent press releases, newest first, capped at limit
// when limit is positive.
func (r *Releases) Fetch(ctx context.Context, limit int) ([]models.Release, error) {
	r.mu.Lock()
	if r.cached != nil && time.Since(r.fetchedAt) < r.ttl {
		out := capReleases(r.cached, limit)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := r.parser.ParseURLWithContext(r.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse press feed: %w", err)
	}

	releases := make([]models.Release, 0, len(feed.Items))
	for _, item := range feed.Items {
		rel := models.Release{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Summary: stripHTML(item.Description),
		}
		if item.PublishedParsed != nil {
			rel.Published = *item.PublishedParsed
		}
		releases = append(releases, rel)
	}
	sort.Slice(releases, func(i, j int) bool {
		return releases[i].Published.After(releases[j].Published)
	})

	r.mu.Lock()
	r.cached = releases
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	return capReleases(releases, limit), nil
}

func capReleases(releases []models.Release, limit int) []models.Release {
	if limit > 0 && len(releases) > limit {
		releases = releases[:limit]
	}
	out := make([]models.Release, len(releases))
	copy(out, releases)
	return out
}

// stripHTML flattens feed descriptions that arrive as HTML fragments.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
