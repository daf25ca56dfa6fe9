package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ge-price-pipeline/internal/config"
	"ge-price-pipeline/internal/source"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.sqlite"),
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}

	store := NewStore(db)
	t.Cleanup(store.Close)
	return store
}

func hourRow(itemID int64, dt time.Time, high, low, highVol, lowVol int64) source.PriceRow {
	return source.PriceRow{
		ItemID:          itemID,
		Datetime:        dt,
		AvgHighPrice:    high,
		AvgLowPrice:     low,
		HighPriceVolume: highVol,
		LowPriceVolume:  lowVol,
	}
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DatabaseConfig{Path: filepath.Join(dir, "test.sqlite"), BusyTimeout: 5000}

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.Close()

	// Reopening an already-migrated store must not fail.
	db, err = Open(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	db.Close()
}

func TestAppendAndListPrices(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	rows := []source.PriceRow{
		hourRow(2, t0, 180, 175, 100, 50),
		hourRow(561, t0, 200, 190, 10, 5),
		hourRow(2, t1, 182, 178, 90, 60),
	}

	if err := store.AppendPrices(ctx, rows); err != nil {
		t.Fatalf("append prices: %v", err)
	}

	got, err := store.ListPrices(ctx)
	if err != nil {
		t.Fatalf("list prices: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].ItemID != 2 || !got[0].Datetime.Equal(t0) || got[0].AvgHighPrice != 180 {
		t.Fatalf("unexpected first row: %+v", got[0])
	}

	count, err := store.CountPrices(ctx)
	if err != nil {
		t.Fatalf("count prices: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	datetimes, err := store.StoredDatetimes(ctx)
	if err != nil {
		t.Fatalf("stored datetimes: %v", err)
	}
	if len(datetimes) != 2 {
		t.Fatalf("expected 2 distinct datetimes, got %d", len(datetimes))
	}
	if !datetimes[0].Equal(t0) || !datetimes[1].Equal(t1) {
		t.Fatalf("datetimes out of order: %v", datetimes)
	}
}

func TestAppendBlacklistIgnoresDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	dt := time.Date(2022, 1, 1, 5, 0, 0, 0, time.UTC)
	entry := BlacklistEntry{Timestamp: dt.Unix(), Datetime: dt}

	if err := store.AppendBlacklist(ctx, []BlacklistEntry{entry}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := store.AppendBlacklist(ctx, []BlacklistEntry{entry}); err != nil {
		t.Fatalf("duplicate append should be a no-op: %v", err)
	}

	entries, err := store.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("list blacklist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Timestamp != dt.Unix() || !entries[0].Datetime.Equal(dt) {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestWriteItemsKeepsExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	items := []source.Item{
		{ID: 2, Name: "Cannonball", Members: true, BuyLimit: 11000, Value: 5},
		{ID: 561, Name: "Nature rune", BuyLimit: 18000, Value: 180},
	}
	if err := store.WriteItems(ctx, items); err != nil {
		t.Fatalf("write items: %v", err)
	}

	// A second write must not clobber the catalog.
	if err := store.WriteItems(ctx, []source.Item{{ID: 2, Name: "Renamed"}}); err != nil {
		t.Fatalf("rewrite items: %v", err)
	}

	got, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Name != "Cannonball" {
		t.Fatalf("existing item was overwritten: %+v", got[0])
	}
}

func TestListTradedPricesAppliesLiquidityThreshold(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.WriteItems(ctx, []source.Item{
		{ID: 1, Name: "Liquid item"},
		{ID: 2, Name: "Illiquid item"},
	}); err != nil {
		t.Fatalf("write items: %v", err)
	}

	t0 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	// Item 1 trades 1000*1000 = 1e6 per hour; item 2 only 10*10 = 100.
	rows := []source.PriceRow{
		hourRow(1, t0, 1000, 990, 1000, 500),
		hourRow(1, t1, 1010, 1000, 1000, 500),
		hourRow(2, t0, 10, 9, 10, 5),
		hourRow(2, t1, 11, 10, 10, 5),
	}
	if err := store.AppendPrices(ctx, rows); err != nil {
		t.Fatalf("append prices: %v", err)
	}

	traded, err := store.ListTradedPrices(ctx, 500_000)
	if err != nil {
		t.Fatalf("list traded prices: %v", err)
	}
	if len(traded) != 2 {
		t.Fatalf("only the liquid item should be selected, got %d rows", len(traded))
	}
	for _, row := range traded {
		if row.ItemID != 1 {
			t.Fatalf("unexpected item in selection: %d", row.ItemID)
		}
		if row.Name != "Liquid item" {
			t.Fatalf("catalog name should be joined in: %q", row.Name)
		}
	}
	if !traded[0].Datetime.Equal(t0) || !traded[1].Datetime.Equal(t1) {
		t.Fatalf("rows should be ordered by datetime: %v, %v", traded[0].Datetime, traded[1].Datetime)
	}
}
