package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the most recent stored price rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := store.ListRecentPrices(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no price rows found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tItem\tAvgHigh\tAvgLow\tHighVol\tLowVol")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%d\t%d\t%d\n",
			row.Datetime.UTC().Format(time.RFC3339),
			row.ItemID,
			row.AvgHighPrice,
			row.AvgLowPrice,
			row.HighPriceVolume,
			row.LowPriceVolume,
		)
	}

	return writer.Flush()
}
