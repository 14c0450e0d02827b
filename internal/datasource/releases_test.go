package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const pressFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>CFTC Press Releases</title>
  <item>
    <title>CFTC Charges Trading Firm</title>
    <link>https://www.cftc.gov/PressRoom/PressReleases/8900-24</link>
    <description>&lt;p&gt;Enforcement action announced.&lt;/p&gt;</description>
    <pubDate>Tue, 05 Mar 2024 14:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Commitments of Traders Report Published</title>
    <link>https://www.cftc.gov/PressRoom/PressReleases/8901-24</link>
    <description>Weekly positioning data released.</description>
    <pubDate>Fri, 08 Mar 2024 19:30:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func newReleasesTestServer(t *testing.T) (*Releases, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, pressFeed)
	}))
	t.Cleanup(srv.Close)

	r := NewReleases()
	r.FeedURL = srv.URL
	return r, &hits
}

func TestReleasesFetch(t *testing.T) {
	r, _ := newReleasesTestServer(t)

	releases, err := r.Fetch(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 2 {
		t.Fatalf("releases = %d, want 2", len(releases))
	}

	// Newest first regardless of feed order.
	first := releases[0]
	if first.Title != "Commitments of Traders Report Published" {
		t.Errorf("first title = %q", first.Title)
	}
	if !first.Published.Equal(time.Date(2024, 3, 8, 19, 30, 0, 0, time.UTC)) {
		t.Errorf("first published = %s", first.Published)
	}

	// HTML fragments in descriptions are flattened to text.
	if releases[1].Summary != "Enforcement action announced." {
		t.Errorf("summary = %q", releases[1].Summary)
	}
}

func TestReleasesFetchLimitAndCache(t *testing.T) {
	r, hits := newReleasesTestServer(t)
	ctx := context.Background()

	releases, err := r.Fetch(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 {
		t.Fatalf("limited releases = %d, want 1", len(releases))
	}

	if _, err := r.Fetch(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("feed fetched %d times, want 1 (cached)", hits.Load())
	}
}
