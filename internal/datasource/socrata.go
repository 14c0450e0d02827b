package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mwcapital/COT-Monitor/pkg/models"
)

// socrataBaseURL is the CFTC open-data host.
const socrataBaseURL = "https://publicreporting.cftc.gov/resource"

// socrataLegacyFutures is the legacy futures-only report dataset.
const socrataLegacyFutures = "6dca-aqww"

// socrataRowLimit caps one query; legacy histories reach back to 1986,
// roughly two thousand weekly rows per contract.
const socrataRowLimit = 50000

// Socrata fetches legacy-format positioning series straight from the
// CFTC open-data API. It serves as the fallback when no Nasdaq Data
// Link key is configured.
type Socrata struct {
	AppToken string

	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL string

	cache   *SeriesCache
	limiter *RateLimiter
}

// NewSocrata creates a CFTC open-data source. The app token is optional;
// anonymous requests get a shared throttling pool.
func NewSocrata(appToken string) *Socrata {
	return &Socrata{
		AppToken: appToken,
		BaseURL:  socrataBaseURL,
		cache:    NewSeriesCache(6 * time.Hour),
		limiter:  NewRateLimiter(2, time.Second),
	}
}

// Name returns the data source name.
func (s *Socrata) Name() string { return "CFTC Open Data" }

// SetCacheTTL replaces the series cache with one using the given TTL.
func (s *Socrata) SetCacheTTL(ttl time.Duration) {
	s.cache = NewSeriesCache(ttl)
}

// socrataColumnMap renames CFTC open-data fields to the canonical
// column vocabulary. The misspelled spread field is in the upstream
// dataset itself.
var socrataColumnMap = map[string]string{
	"open_interest_all":           "open_interest",
	"noncomm_positions_long_all":  "non_commercial_longs",
	"noncomm_positions_short_all": "non_commercial_shorts",
	"noncomm_postions_spread_all": "spreading",
	"comm_positions_long_all":     "commercial_longs",
	"comm_positions_short_all":    "commercial_shorts",
	"nonrept_positions_long_all":  "non_reportable_longs",
	"nonrept_positions_short_all": "non_reportable_shorts",
	"traders_tot_all":             "market_participation",
}

// legacyFuturesCategory is the type category the open-data legacy
// futures dataset corresponds to.
const legacyFuturesCategory = "F_L_ALL"

// FetchSeries returns the weekly legacy series for one contract code.
// Only the bare legacy futures category is served; concentration,
// trader-count, and options variants live behind the datatable API.
func (s *Socrata) FetchSeries(ctx context.Context, contractCode, typeCategory string) (*models.Series, error) {
	if typeCategory != "" && typeCategory != legacyFuturesCategory {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, typeCategory)
	}

	cacheKey := "socrata:" + contractCode
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("$where", fmt.Sprintf("cftc_contract_market_code='%s'", contractCode))
	q.Set("$order", "report_date_as_yyyy_mm_dd")
	q.Set("$limit", strconv.Itoa(socrataRowLimit))
	u := fmt.Sprintf("%s/%s.json?%s", s.BaseURL, socrataLegacyFutures, q.Encode())

	headers := map[string]string{}
	if s.AppToken != "" {
		headers["X-App-Token"] = s.AppToken
	}

	body, err := doGet(ctx, u, headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var rows []map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode open-data response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, contractCode)
	}

	series, err := buildLegacySeries(contractCode, rows)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, series)
	return series, nil
}

// buildLegacySeries converts open-data rows into a canonical series.
// Socrata serialises every number as a string; unparseable or missing
// fields leave the column absent for that week.
func buildLegacySeries(contractCode string, rows []map[string]json.RawMessage) (*models.Series, error) {
	series := &models.Series{
		ContractCode: contractCode,
		TypeCategory: legacyFuturesCategory,
	}
	colSet := make(map[string]bool)

	for _, row := range rows {
		dateRaw, ok := row["report_date_as_yyyy_mm_dd"]
		if !ok {
			return nil, fmt.Errorf("open-data row missing report date")
		}
		var ds string
		if err := json.Unmarshal(dateRaw, &ds); err != nil {
			return nil, fmt.Errorf("decode report date: %w", err)
		}
		// Floating timestamps arrive as "2024-03-05T00:00:00.000".
		d, err := time.Parse("2006-01-02", strings.SplitN(ds, "T", 2)[0])
		if err != nil {
			return nil, fmt.Errorf("parse report date %q: %w", ds, err)
		}

		o := models.Observation{Date: d, Values: make(map[string]float64)}
		for field, col := range socrataColumnMap {
			raw, ok := row[field]
			if !ok {
				continue
			}
			var vs string
			if err := json.Unmarshal(raw, &vs); err != nil {
				continue
			}
			v, err := strconv.ParseFloat(vs, 64)
			if err != nil {
				continue
			}
			o.Values[col] = v
			colSet[col] = true
		}

		if series.Name == "" {
			if raw, ok := row["market_and_exchange_names"]; ok {
				var name string
				if json.Unmarshal(raw, &name) == nil {
					series.Name = name
				}
			}
		}
		series.Observations = append(series.Observations, o)
	}

	series.Columns = sortedColumns(colSet)
	return series, nil
}
