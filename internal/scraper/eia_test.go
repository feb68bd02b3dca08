package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"futurespot/internal/model"
)

const spotHistoryHTML = `<html><body>
<table>
  <tr><td>Navigation</td><td>Links</td></tr>
</table>
<table>
  <tr><th>Henry Hub Natural Gas Spot Price</th><th></th></tr>
  <tr><th>Date</th><th>Price (Dollars per MMBtu)</th></tr>
  <tr><td>08/20/2025</td><td>2.905</td></tr>
  <tr><td>08/21/2025</td><td>2.918</td></tr>
  <tr><td>08/22/2025</td><td></td></tr>
</table>
</body></html>`

func TestEIAScraper_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(spotHistoryHTML))
	}))
	defer srv.Close()

	s := NewEIAScraper(testLogger, testConfig(srv.URL, srv.URL))
	rows, err := s.Fetch(context.Background(), model.HenryHub, time.Time{})
	assert.NoError(t, err)

	// Empty price cells survive here; the normalizer owns dropping them.
	if assert.Len(t, rows, 3) {
		assert.Equal(t, "08/20/2025", rows[0].Date)
		assert.Equal(t, "2.905", rows[0].Price)
		assert.Equal(t, "08/22/2025", rows[2].Date)
		assert.Equal(t, "", rows[2].Price)
	}
}

func TestEIAScraper_Fetch_NoHistoryTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table><tr><td>nothing here</td></tr></table></body></html>`))
	}))
	defer srv.Close()

	s := NewEIAScraper(testLogger, testConfig(srv.URL, srv.URL))
	rows, err := s.Fetch(context.Background(), model.WTI, time.Time{})
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEIAScraper_Fetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewEIAScraper(testLogger, testConfig(srv.URL, srv.URL))
	_, err := s.Fetch(context.Background(), model.WTI, time.Time{})

	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, model.SourceEIA, fetchErr.Source)
	assert.Equal(t, model.WTI, fetchErr.Commodity)
}
