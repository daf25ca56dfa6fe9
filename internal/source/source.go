package source

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks transport failures and unparsable responses from the
// price API. An hour that exists but carries no data is not an error.
var ErrUnavailable = errors.New("source: price api unavailable")

// PriceRow is one item's observed price statistics for one hour.
type PriceRow struct {
	ItemID          int64
	Datetime        time.Time
	AvgHighPrice    int64
	AvgLowPrice     int64
	HighPriceVolume int64
	LowPriceVolume  int64
}

// Item is one catalog entry from the item mapping endpoint.
type Item struct {
	ID       int64
	Name     string
	Members  bool
	BuyLimit int64
	Value    int64
	HighAlch int64
	LowAlch  int64
	Examine  string
}

// PriceSource retrieves hourly snapshots and the item catalog.
type PriceSource interface {
	FetchHour(ctx context.Context, timestamp int64) ([]PriceRow, error)
	FetchCatalog(ctx context.Context) ([]Item, error)
}
