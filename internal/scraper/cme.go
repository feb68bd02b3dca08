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

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// CMEScraper fetches futures settlement tables from the CME Group
// settlements pages.
type CMEScraper struct {
	logger *slog.Logger
	client *http.Client
	urls   config.SourceURLs
	limit  *limiter
}

// NewCMEScraper creates a new CMEScraper.
func NewCMEScraper(logger *slog.Logger, cfg *config.Config) *CMEScraper {
	return &CMEScraper{
		logger: logger,
		client: &http.Client{Timeout: cfg.Scrape.FetchTimeout()},
		urls:   cfg.Sources.CME,
		limit:  newLimiter(cfg.Scrape.RateLimit()),
	}
}

func (s *CMEScraper) Name() model.Source { return model.SourceCME }

// Fetch retrieves the settlements page for the commodity and parses the
// first table that yields contract rows. An empty result is not an error;
// settlement tables are simply absent on non-trading days.
func (s *CMEScraper) Fetch(ctx context.Context, commodity model.Commodity, date time.Time) ([]model.RawFuturesRow, error) {
	url, err := s.urlFor(commodity)
	if err != nil {
		return nil, err
	}
	if !date.IsZero() {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "tradeDate=" + date.Format("2006-01-02")
	}

	if err := s.limit.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: model.SourceCME, Commodity: commodity, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: model.SourceCME, Commodity: commodity, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Source:    model.SourceCME,
			Commodity: commodity,
			URL:       url,
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: model.SourceCME, Commodity: commodity, URL: url, Err: err}
	}

	var rows []model.RawFuturesRow
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows = parseSettlementTable(table)
		return len(rows) == 0 // stop at the first table with contract rows
	})

	s.logger.Info("CMEScraper: fetched settlement rows",
		"commodity", commodity, "date", date.Format("2006-01-02"), "rows", len(rows))
	return rows, nil
}

func (s *CMEScraper) urlFor(commodity model.Commodity) (string, error) {
	switch commodity {
	case model.WTI:
		return s.urls.WTIURL, nil
	case model.HenryHub:
		return s.urls.HHURL, nil
	default:
		return "", fmt.Errorf("unknown commodity: %s", commodity)
	}
}

// parseSettlementTable extracts near-raw contract rows from one HTML
// table. Columns are located by header text because CME reorders them
// between products; the SETTLE column is required.
func parseSettlementTable(table *goquery.Selection) []model.RawFuturesRow {
	trs := table.Find("tr")
	if trs.Length() < 2 {
		return nil
	}

	cols := map[string]int{}
	trs.First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
		text := strings.ToUpper(strings.TrimSpace(cell.Text()))
		switch {
		case strings.Contains(text, "MONTH"):
			cols["month"] = i
		case strings.Contains(text, "OPEN") && !strings.Contains(text, "INTEREST"):
			cols["open"] = i
		case strings.Contains(text, "HIGH"):
			cols["high"] = i
		case strings.Contains(text, "LOW"):
			cols["low"] = i
		case strings.Contains(text, "LAST"):
			cols["last"] = i
		case strings.Contains(text, "CHANGE"):
			cols["change"] = i
		case strings.Contains(text, "SETTLE"):
			cols["settle"] = i
		case strings.Contains(text, "VOLUME"):
			cols["volume"] = i
		case strings.Contains(text, "OPEN INTEREST") || strings.Contains(text, "OI"):
			cols["oi"] = i
		}
	})
	if _, ok := cols["settle"]; !ok {
		return nil
	}

	var rows []model.RawFuturesRow
	trs.Slice(1, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() < 3 {
			return
		}
		text := func(key string) string {
			idx, ok := cols[key]
			if !ok || idx >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		month := text("month")
		switch strings.ToUpper(month) {
		case "", "MONTH", "TOTAL": // separator and summary rows
			return
		}

		rows = append(rows, model.RawFuturesRow{
			Month:      month,
			Open:       text("open"),
			High:       text("high"),
			Low:        text("low"),
			Last:       text("last"),
			Change:     text("change"),
			Settle:     text("settle"),
			EstVolume:  text("volume"),
			PriorDayOI: text("oi"),
		})
	})
	return rows
}
