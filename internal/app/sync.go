package app

import (
	"context"
	"fmt"
	"os"
)

// Sync runs one incremental synchronisation pass against the price API.
func (a *App) Sync(ctx context.Context) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := a.newSyncer(store).Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "fetched %d hours, %d new rows, %d blacklisted\n",
		result.Fetched, result.NewRows, result.Blacklisted)
	return nil
}
