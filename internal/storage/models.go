package storage

import (
	"time"
)

// BlacklistEntry records an hour previously queried and found to carry no
// data. Entries never expire; a blacklisted hour is never fetched again.
type BlacklistEntry struct {
	Timestamp int64
	Datetime  time.Time
}

// TradedPrice is one joined prices+items row for an item that passed the
// liquidity selection. Input shape for the cleaning pipeline.
type TradedPrice struct {
	ItemID          int64
	Name            string
	Datetime        time.Time
	AvgHighPrice    int64
	AvgLowPrice     int64
	HighPriceVolume int64
	LowPriceVolume  int64
}
