package cleaner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ge-price-pipeline/internal/config"
	"ge-price-pipeline/internal/storage"
)

// ErrInvalidParameter marks a caller-supplied parameter that violates a
// precondition. No partial work is performed.
var ErrInvalidParameter = errors.New("cleaner: invalid parameter")

// Row is one item-period observation in the cleaned panel.
type Row struct {
	ItemID   int64
	Name     string
	Datetime time.Time
	Price    float64
	Margin   float64
	Volume   float64
}

// TradedPriceLister is the single store query the pipeline reads from.
type TradedPriceLister interface {
	ListTradedPrices(ctx context.Context, liquidityThreshold float64) ([]storage.TradedPrice, error)
}

// Cleaner turns raw stored snapshots into an analysis-ready resampled panel.
// Every stage past the initial store read is pure and deterministic.
type Cleaner struct {
	store  TradedPriceLister
	logger zerolog.Logger

	liquidityThreshold float64
	coverageRatio      float64
	zScoreThreshold    float64
}

// New constructs a Cleaner.
func New(cfg *config.Config, store TradedPriceLister, logger zerolog.Logger) *Cleaner {
	return &Cleaner{
		store:              store,
		logger:             logger.With().Str("component", "cleaner").Logger(),
		liquidityThreshold: cfg.Cleaner.LiquidityThreshold,
		coverageRatio:      cfg.Cleaner.CoverageRatio,
		zScoreThreshold:    cfg.Cleaner.ZScoreThreshold,
	}
}

// Load runs the full pipeline and returns the cleaned panel resampled to
// nHours-wide periods: liquidity selection, coverage filter, derived columns,
// outlier removal, gap filling, resampling.
func (c *Cleaner) Load(ctx context.Context, nHours int) ([]Row, error) {
	if nHours <= 1 {
		return nil, fmt.Errorf("%w: n_hours must be greater than 1, got %d", ErrInvalidParameter, nHours)
	}

	traded, err := c.store.ListTradedPrices(ctx, c.liquidityThreshold)
	if err != nil {
		return nil, err
	}

	rows := DeriveRows(traded, c.coverageRatio)
	c.logger.Debug().Int("input", len(traded)).Int("covered", len(rows)).Msg("coverage filter applied")

	rows = RemovePriceOutliers(rows, c.zScoreThreshold)
	rows = FillMissingData(rows)

	panel, err := Resample(rows, nHours)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("rows", len(panel)).
		Int("n_hours", nHours).
		Msg("panel loaded")

	return panel, nil
}

// DeriveRows applies the coverage filter and computes the derived columns.
// Items present in fewer than round(coverageRatio * n_periods) periods are
// dropped rather than imputed across huge gaps. For the survivors the four
// raw columns collapse into price, margin, and volume.
func DeriveRows(traded []storage.TradedPrice, coverageRatio float64) []Row {
	if len(traded) == 0 {
		return nil
	}

	periods := make(map[time.Time]struct{})
	counts := make(map[int64]int)
	for _, t := range traded {
		periods[t.Datetime] = struct{}{}
		counts[t.ItemID]++
	}

	required := int(math.Round(float64(len(periods)) * coverageRatio))

	rows := make([]Row, 0, len(traded))
	for _, t := range traded {
		if counts[t.ItemID] < required {
			continue
		}
		rows = append(rows, Row{
			ItemID:   t.ItemID,
			Name:     t.Name,
			Datetime: t.Datetime,
			Price:    (float64(t.AvgLowPrice) + float64(t.AvgHighPrice)) / 2,
			Margin:   float64(t.AvgHighPrice) - float64(t.AvgLowPrice),
			Volume:   float64(t.HighPriceVolume) + float64(t.LowPriceVolume),
		})
	}

	sortRows(rows)
	return rows
}

// RemovePriceOutliers drops rows whose per-item price-change z-score exceeds
// the threshold. The first period's change is defined as zero. The test is
// one-sided: a single extreme upward tick is removed, the compensating drop
// that follows it is kept. Items with a constant price series are left whole.
func RemovePriceOutliers(rows []Row, zThreshold float64) []Row {
	sortRows(rows)

	kept := make([]Row, 0, len(rows))
	forEachItem(rows, func(item []Row) {
		changes := make([]float64, len(item))
		for i := 1; i < len(item); i++ {
			changes[i] = item[i].Price - item[i-1].Price
		}

		mean, std := meanStd(changes)
		if std == 0 {
			kept = append(kept, item...)
			return
		}

		for i, row := range item {
			z := (changes[i] - mean) / std
			if z > zThreshold {
				continue
			}
			kept = append(kept, row)
		}
	})
	return kept
}

// FillMissingData builds the full cross product of observed periods and
// surviving items, then imputes each item's missing periods with that item's
// own mean for price, margin, and volume. The result is a rectangular panel.
func FillMissingData(rows []Row) []Row {
	if len(rows) == 0 {
		return nil
	}

	periodSet := make(map[time.Time]struct{})
	type itemKey struct {
		id   int64
		name string
	}
	itemSet := make(map[itemKey]struct{})
	observed := make(map[int64]map[time.Time]Row)

	for _, row := range rows {
		periodSet[row.Datetime] = struct{}{}
		itemSet[itemKey{row.ItemID, row.Name}] = struct{}{}
		if observed[row.ItemID] == nil {
			observed[row.ItemID] = make(map[time.Time]Row)
		}
		observed[row.ItemID][row.Datetime] = row
	}

	periods := make([]time.Time, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	items := make([]itemKey, 0, len(itemSet))
	for it := range itemSet {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })

	filled := make([]Row, 0, len(items)*len(periods))
	for _, it := range items {
		var priceSum, marginSum, volumeSum float64
		n := float64(len(observed[it.id]))
		for _, row := range observed[it.id] {
			priceSum += row.Price
			marginSum += row.Margin
			volumeSum += row.Volume
		}

		for _, p := range periods {
			if row, ok := observed[it.id][p]; ok {
				filled = append(filled, row)
				continue
			}
			filled = append(filled, Row{
				ItemID:   it.id,
				Name:     it.name,
				Datetime: p,
				Price:    priceSum / n,
				Margin:   marginSum / n,
				Volume:   volumeSum / n,
			})
		}
	}
	return filled
}

// Resample aggregates the panel into fixed nHours-wide buckets per item:
// price and margin by mean, volume by sum. Buckets are epoch-aligned hour
// boundaries, so resampling the same panel twice is deterministic.
func Resample(rows []Row, nHours int) ([]Row, error) {
	if nHours <= 1 {
		return nil, fmt.Errorf("%w: n_hours must be greater than 1, got %d", ErrInvalidParameter, nHours)
	}

	width := time.Duration(nHours) * time.Hour

	type bucketAgg struct {
		name      string
		priceSum  float64
		marginSum float64
		volumeSum float64
		n         float64
	}
	type bucketKey struct {
		itemID int64
		bucket time.Time
	}

	aggs := make(map[bucketKey]*bucketAgg)
	for _, row := range rows {
		key := bucketKey{row.ItemID, row.Datetime.Truncate(width)}
		agg, ok := aggs[key]
		if !ok {
			agg = &bucketAgg{name: row.Name}
			aggs[key] = agg
		}
		agg.priceSum += row.Price
		agg.marginSum += row.Margin
		agg.volumeSum += row.Volume
		agg.n++
	}

	panel := make([]Row, 0, len(aggs))
	for key, agg := range aggs {
		panel = append(panel, Row{
			ItemID:   key.itemID,
			Name:     agg.name,
			Datetime: key.bucket,
			Price:    agg.priceSum / agg.n,
			Margin:   agg.marginSum / agg.n,
			Volume:   agg.volumeSum,
		})
	}

	sortRows(panel)
	return panel, nil
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ItemID != rows[j].ItemID {
			return rows[i].ItemID < rows[j].ItemID
		}
		return rows[i].Datetime.Before(rows[j].Datetime)
	})
}

// forEachItem invokes fn once per contiguous item group. Rows must already be
// sorted by item then datetime.
func forEachItem(rows []Row, fn func(item []Row)) {
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].ItemID != rows[start].ItemID {
			fn(rows[start:i])
			start = i
		}
	}
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
