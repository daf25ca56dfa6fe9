package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"ge-price-pipeline/internal/source"
)

// Status reports how the store partitions the reference calendar: every
// calendar hour is either stored, blacklisted, or still missing.
func (a *App) Status(ctx context.Context) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	calendar := source.ReferenceCalendar(
		a.Config.OriginTime(),
		time.Now(),
		a.Config.Source.SafetyMargin,
	)

	stored, err := store.StoredDatetimes(ctx)
	if err != nil {
		return err
	}
	blacklisted, err := store.ListBlacklist(ctx)
	if err != nil {
		return err
	}
	priceRows, err := store.CountPrices(ctx)
	if err != nil {
		return err
	}
	items, err := store.CountItems(ctx)
	if err != nil {
		return err
	}

	resolved := make(map[int64]struct{}, len(stored)+len(blacklisted))
	for _, dt := range stored {
		resolved[dt.Unix()] = struct{}{}
	}
	for _, entry := range blacklisted {
		resolved[entry.Timestamp] = struct{}{}
	}

	missing := 0
	for _, hour := range calendar {
		if _, ok := resolved[hour.Timestamp]; !ok {
			missing++
		}
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Calendar hours\tStored\tBlacklisted\tMissing\tPrice rows\tCatalog items")
	fmt.Fprintf(writer, "%d\t%d\t%d\t%d\t%d\t%d\n",
		len(calendar), len(stored), len(blacklisted), missing, priceRows, items)
	return writer.Flush()
}
