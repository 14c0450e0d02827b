package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// DefaultNasdaqDataset is the legacy-format commitments datatable.
// The disaggregated datatable is QDL/FON.
const DefaultNasdaqDataset = "QDL/LFON"

const nasdaqBaseURL = "https://data.nasdaq.com/api/v3/datatables"

// perPage is the datatable page size; full contract histories run to a
// few thousand weekly rows, so most fetches complete in one page.
const perPage = 10000

// Nasdaq fetches positioning series from the Nasdaq Data Link
// datatable API.
type Nasdaq struct {
	APIKey  string
	Dataset string

	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL string

	// Concurrency caps in-flight requests in FetchCategories. Zero means
	// unlimited.
	Concurrency int

	cache   *SeriesCache
	limiter *RateLimiter
}

// NewNasdaq creates a Nasdaq Data Link source for the given datatable.
// An empty dataset selects DefaultNasdaqDataset.
func NewNasdaq(apiKey, dataset string) *Nasdaq {
	if dataset == "" {
		dataset = DefaultNasdaqDataset
	}
	return &Nasdaq{
		APIKey:      apiKey,
		Dataset:     dataset,
		BaseURL:     nasdaqBaseURL,
		Concurrency: 4,
		cache:       NewSeriesCache(6 * time.Hour),
		limiter:     NewRateLimiter(5, time.Second),
	}
}

// Name returns the data source name.
func (n *Nasdaq) Name() string { return "Nasdaq Data Link" }

// SetCacheTTL replaces the series cache with one using the given TTL.
func (n *Nasdaq) SetCacheTTL(ttl time.Duration) {
	n.cache = NewSeriesCache(ttl)
}

// datatableResponse mirrors the wire format of the datatable API.
type datatableResponse struct {
	Datatable struct {
		Data    [][]json.RawMessage `json:"data"`
		Columns []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
	} `json:"datatable"`
	Meta struct {
		NextCursorID *string `json:"next_cursor_id"`
	} `json:"meta"`
}

// FetchSeries returns the full weekly series for one contract code and
// type category, following cursor pagination until exhausted.
func (n *Nasdaq) FetchSeries(ctx context.Context, contractCode, typeCategory string) (*models.Series, error) {
	cacheKey := fmt.Sprintf("nasdaq:%s:%s:%s", n.Dataset, contractCode, typeCategory)
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached, nil
	}

	s := &models.Series{
		ContractCode: contractCode,
		TypeCategory: typeCategory,
	}
	colSet := make(map[string]bool)

	cursor := ""
	for {
		page, err := n.fetchPage(ctx, contractCode, typeCategory, cursor)
		if err != nil {
			return nil, err
		}
		if err := appendRows(s, colSet, page); err != nil {
			return nil, err
		}
		if page.Meta.NextCursorID == nil || *page.Meta.NextCursorID == "" {
			break
		}
		cursor = *page.Meta.NextCursorID
	}

	if len(s.Observations) == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrSeriesNotFound, contractCode, typeCategory)
	}

	sort.Slice(s.Observations, func(i, j int) bool {
		return s.Observations[i].Date.Before(s.Observations[j].Date)
	})
	s.Columns = sortedColumns(colSet)

	n.cache.Set(cacheKey, s)
	return s, nil
}

// FetchCategories fetches several type categories for one contract
// concurrently. A category with no data is omitted from the result;
// any other failure aborts the whole fetch.
func (n *Nasdaq) FetchCategories(ctx context.Context, contractCode string, typeCategories []string) (map[string]*models.Series, error) {
	var mu sync.Mutex
	out := make(map[string]*models.Series, len(typeCategories))

	g, gctx := errgroup.WithContext(ctx)
	if n.Concurrency > 0 {
		g.SetLimit(n.Concurrency)
	}
	for _, tc := range typeCategories {
		g.Go(func() error {
			s, err := n.FetchSeries(gctx, contractCode, tc)
			if errors.Is(err, ErrSeriesNotFound) || errors.Is(err, ErrNotSupported) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetch %s: %w", tc, err)
			}
			mu.Lock()
			out[tc] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// --- internal helpers ---

func (n *Nasdaq) fetchPage(ctx context.Context, contractCode, typeCategory, cursor string) (*datatableResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("contract_code", contractCode)
	q.Set("type", typeCategory)
	q.Set("qopts.per_page", strconv.Itoa(perPage))
	if n.APIKey != "" {
		q.Set("api_key", n.APIKey)
	}
	if cursor != "" {
		q.Set("qopts.cursor_id", cursor)
	}
	u := fmt.Sprintf("%s/%s.json?%s", n.BaseURL, n.Dataset, q.Encode())

	body, err := doGet(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp datatableResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode datatable response: %w", err)
	}
	return &resp, nil
}

// appendRows converts one datatable page into observations. Column
// names arrive lowercase from the API; date/contract_code/type are
// identifiers, everything else numeric. Null cells are simply absent
// from the row's value map.
func appendRows(s *models.Series, colSet map[string]bool, page *datatableResponse) error {
	names := make([]string, len(page.Datatable.Columns))
	for i, c := range page.Datatable.Columns {
		names[i] = strings.ToLower(c.Name)
	}

	for _, row := range page.Datatable.Data {
		if len(row) != len(names) {
			return fmt.Errorf("datatable row has %d cells, want %d", len(row), len(names))
		}
		o := models.Observation{Values: make(map[string]float64)}
		for i, cell := range row {
			switch names[i] {
			case "date":
				var ds string
				if err := json.Unmarshal(cell, &ds); err != nil {
					return fmt.Errorf("decode date cell: %w", err)
				}
				d, err := time.Parse("2006-01-02", ds)
				if err != nil {
					return fmt.Errorf("parse date %q: %w", ds, err)
				}
				o.Date = d
			case "contract_code", "type":
				// Echoed filter values; already on the series.
			default:
				if string(cell) == "null" {
					continue
				}
				var v float64
				if err := json.Unmarshal(cell, &v); err != nil {
					return fmt.Errorf("decode %s cell: %w", names[i], err)
				}
				o.Values[names[i]] = v
				colSet[names[i]] = true
			}
		}
		if o.Date.IsZero() {
			return fmt.Errorf("datatable row missing date column")
		}
		s.Observations = append(s.Observations, o)
	}
	return nil
}

func sortedColumns(colSet map[string]bool) []string {
	cols := make([]string, 0, len(colSet)+1)
	cols = append(cols, "date")
	numeric := make([]string, 0, len(colSet))
	for c := range colSet {
		numeric = append(numeric, c)
	}
	sort.Strings(numeric)
	return append(cols, numeric...)
}
