package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"futurespot/internal/config"
	"futurespot/internal/model"
)

// EIAScraper fetches spot price history tables from the U.S. Energy
// Information Administration.
type EIAScraper struct {
	logger *slog.Logger
	client *http.Client
	urls   config.SourceURLs
	limit  *limiter
}

// NewEIAScraper creates a new EIAScraper.
func NewEIAScraper(logger *slog.Logger, cfg *config.Config) *EIAScraper {
	return &EIAScraper{
		logger: logger,
		client: &http.Client{Timeout: cfg.Scrape.FetchTimeout()},
		urls:   cfg.Sources.EIA,
		limit:  newLimiter(cfg.Scrape.RateLimit()),
	}
}

func (s *EIAScraper) Name() model.Source { return model.SourceEIA }

// Fetch retrieves the spot price history page for the commodity. EIA
// publishes the full history in one table, so the result usually spans
// many dates; the store's natural-key deduplication absorbs the overlap
// on repeat scrapes.
func (s *EIAScraper) Fetch(ctx context.Context, commodity model.Commodity, date time.Time) ([]model.RawSpotRow, error) {
	url, err := s.urlFor(commodity)
	if err != nil {
		return nil, err
	}

	if err := s.limit.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: model.SourceEIA, Commodity: commodity, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: model.SourceEIA, Commodity: commodity, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Source:    model.SourceEIA,
			Commodity: commodity,
			URL:       url,
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: model.SourceEIA, Commodity: commodity, URL: url, Err: err}
	}

	var rows []model.RawSpotRow
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows = parseSpotTable(table)
		return len(rows) == 0
	})

	s.logger.Info("EIAScraper: fetched spot rows", "commodity", commodity, "rows", len(rows))
	return rows, nil
}

func (s *EIAScraper) urlFor(commodity model.Commodity) (string, error) {
	switch commodity {
	case model.WTI:
		return s.urls.WTIURL, nil
	case model.HenryHub:
		return s.urls.HHURL, nil
	default:
		return "", fmt.Errorf("unknown commodity: %s", commodity)
	}
}

var priceHeaderKeywords = []string{"price", "dollar", "per barrel", "per mmbtu"}

// parseSpotTable extracts date/price pairs from one HTML table. The
// header row must name both a date (or year) column and a price column.
func parseSpotTable(table *goquery.Selection) []model.RawSpotRow {
	trs := table.Find("tr")

	headerIdx, dateIdx, priceIdx := -1, -1, -1
	trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		dIdx, pIdx := -1, -1
		tr.Find("th, td").Each(func(j int, cell *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(cell.Text()))
			if strings.Contains(text, "date") || strings.Contains(text, "year") {
				dIdx = j
			}
			for _, kw := range priceHeaderKeywords {
				if strings.Contains(text, kw) {
					pIdx = j
				}
			}
		})
		if dIdx >= 0 && pIdx >= 0 {
			headerIdx, dateIdx, priceIdx = i, dIdx, pIdx
			return false
		}
		return true
	})
	if headerIdx < 0 {
		return nil
	}

	var rows []model.RawSpotRow
	trs.Slice(headerIdx+1, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() <= dateIdx || cells.Length() <= priceIdx {
			return
		}
		date := strings.TrimSpace(cells.Eq(dateIdx).Text())
		price := strings.TrimSpace(cells.Eq(priceIdx).Text())
		if date == "" {
			return
		}
		rows = append(rows, model.RawSpotRow{Date: date, Price: price})
	})
	return rows
}
