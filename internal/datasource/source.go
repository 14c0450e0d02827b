// Package datasource fetches weekly futures-positioning data and CFTC
// publication metadata. It defines a common SeriesSource interface and
// implements concrete sources for the Nasdaq Data Link datatable API and
// the CFTC Socrata open-data API, plus feed and schedule scrapers.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// SeriesSource is the common interface for positioning-data backends.
// Type categories a backend cannot serve return ErrNotSupported.
type SeriesSource interface {
	// Name returns the human-readable name of this source.
	Name() string

	// FetchSeries returns the full weekly series for one contract and
	// type category, oldest record first.
	FetchSeries(ctx context.Context, contractCode, typeCategory string) (*models.Series, error)
}

// MultiFetcher is implemented by sources that can fetch several type
// categories in one call, typically concurrently.
type MultiFetcher interface {
	FetchCategories(ctx context.Context, contractCode string, typeCategories []string) (map[string]*models.Series, error)
}

// FetchCategories fetches each requested type category for one contract,
// using the source's own multi-category path when it has one. Categories
// the source cannot serve, or that resolve to no data, are omitted from
// the result; any other failure aborts the whole fetch.
func FetchCategories(ctx context.Context, src SeriesSource, contractCode string, typeCategories []string) (map[string]*models.Series, error) {
	if m, ok := src.(MultiFetcher); ok {
		return m.FetchCategories(ctx, contractCode, typeCategories)
	}

	out := make(map[string]*models.Series, len(typeCategories))
	for _, tc := range typeCategories {
		s, err := src.FetchSeries(ctx, contractCode, tc)
		if errors.Is(err, ErrNotSupported) || errors.Is(err, ErrSeriesNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", tc, err)
		}
		out[tc] = s
	}
	return out, nil
}

// --- Sentinel errors ---

// ErrNotSupported is returned when a source cannot serve the requested
// type category.
var ErrNotSupported = fmt.Errorf("type category not supported by this source")

// ErrSeriesNotFound is returned when a contract code resolves to no data.
var ErrSeriesNotFound = fmt.Errorf("no data for contract code")

// ErrRateLimited is returned when the upstream rate-limits the request.
var ErrRateLimited = fmt.Errorf("rate limited by data source")

// ErrHTTP wraps an upstream HTTP error with its status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// --- Shared HTTP client helpers ---

// DefaultUserAgent identifies the monitor to upstream APIs.
const DefaultUserAgent = "cot-monitor/1.0 (+https://github.com/mwcapital/COT-Monitor)"

// HTTPClient is the shared client; positioning datatables can run to
// thousands of rows, so the timeout is generous.
var HTTPClient = &http.Client{
	Timeout: 60 * time.Second,
}

// doGet performs a GET request and returns the response body. The caller
// is responsible for closing the returned ReadCloser. A 429 is surfaced
// as ErrRateLimited, other 4xx/5xx as *ErrHTTP.
func doGet(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, url)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, nil
}

// --- Series cache ---

type cacheEntry struct {
	series    *models.Series
	expiresAt time.Time
}

// SeriesCache is a thread-safe TTL cache keyed by contract code and
// type category. Weekly data only changes once per release, so sources
// default to a long TTL.
type SeriesCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewSeriesCache creates a cache with the given default TTL.
func NewSeriesCache(ttl time.Duration) *SeriesCache {
	return &SeriesCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get retrieves a cached series, or nil, false when absent or expired.
func (c *SeriesCache) Get(key string) (*models.Series, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.series, true
}

// Set stores a series under the default TTL.
func (c *SeriesCache) Set(key string, s *models.Series) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{series: s, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops one key, forcing the next fetch to hit the network.
func (c *SeriesCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Flush drops every entry.
func (c *SeriesCache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// --- Rate limiter ---

// RateLimiter is a token bucket shared by a source's requests.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter allows maxTokens requests per refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// refill adds tokens for elapsed periods. Must be called with mu held.
func (rl *RateLimiter) refill() {
	elapsed := time.Since(rl.lastRefill)
	if elapsed < rl.refillRate {
		return
	}
	periods := int(elapsed / rl.refillRate)
	rl.tokens += periods
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = rl.lastRefill.Add(time.Duration(periods) * rl.refillRate)
}
