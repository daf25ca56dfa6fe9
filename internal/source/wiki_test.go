package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchHourSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("timestamp"); got != "1640995200" {
			t.Fatalf("unexpected timestamp param: %s", got)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Fatalf("user agent not forwarded: %s", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
            "data": {
                "10": {"avgHighPrice": 200, "avgLowPrice": 190, "highPriceVolume": 5, "lowPriceVolume": 3},
                "2":  {"avgHighPrice": 180, "avgLowPrice": 175, "highPriceVolume": 100, "lowPriceVolume": 50},
                "7":  {"avgHighPrice": null, "avgLowPrice": 90, "highPriceVolume": 1, "lowPriceVolume": 1}
            },
            "timestamp": 1640995200
        }`))
	}))
	defer srv.Close()

	w := NewWiki(WikiOptions{BaseURL: srv.URL, UserAgent: "test-agent", Timeout: time.Second}, noopLogger())

	rows, err := w.FetchHour(context.Background(), 1640995200)
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row with null field should be dropped, got %d rows", len(rows))
	}
	if rows[0].ItemID != 2 || rows[1].ItemID != 10 {
		t.Fatalf("rows should be sorted by item id: %v, %v", rows[0].ItemID, rows[1].ItemID)
	}

	want := time.Unix(1640995200, 0).UTC()
	for _, row := range rows {
		if !row.Datetime.Equal(want) {
			t.Fatalf("row should be stamped with the request hour: %v", row.Datetime)
		}
	}
	if rows[0].AvgHighPrice != 180 || rows[0].AvgLowPrice != 175 ||
		rows[0].HighPriceVolume != 100 || rows[0].LowPriceVolume != 50 {
		t.Fatalf("unexpected row values: %+v", rows[0])
	}
}

func TestFetchHourEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {}, "timestamp": 1640995200}`))
	}))
	defer srv.Close()

	w := NewWiki(WikiOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	rows, err := w.FetchHour(context.Background(), 1640995200)
	if err != nil {
		t.Fatalf("empty hour is a valid outcome, not an error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestFetchHourHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "down for maintenance"}`))
	}))
	defer srv.Close()

	w := NewWiki(WikiOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := w.FetchHour(context.Background(), 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("HTTP failure should wrap ErrUnavailable, got %v", err)
	}
}

func TestFetchHourMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	w := NewWiki(WikiOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := w.FetchHour(context.Background(), 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("unparsable body should wrap ErrUnavailable, got %v", err)
	}
}

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
            {"id": 2, "name": "Cannonball", "members": true, "limit": 11000, "value": 5, "highalch": 3, "lowalch": 2, "examine": "Ammo for the Dwarf Cannon."},
            {"id": 561, "name": "Nature rune", "members": false, "limit": 18000, "value": 180, "highalch": 108, "lowalch": 72, "examine": "Used for alchemy spells."}
        ]`))
	}))
	defer srv.Close()

	w := NewWiki(WikiOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	items, err := w.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("catalog fetch should succeed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != 2 || items[0].Name != "Cannonball" || items[0].BuyLimit != 11000 {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Name != "Nature rune" || items[1].Members {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}
