package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ge-price-pipeline/internal/config"
	"ge-price-pipeline/internal/source"
	"ge-price-pipeline/internal/storage"
)

// seedHours is how many calendar hours are fetched during first-time setup.
// A deliberately small seed to validate connectivity before a full backfill.
const seedHours = 2

// Result summarises one sync invocation.
type Result struct {
	Fetched     int
	NewRows     int
	Blacklisted int
}

// Synchronizer keeps the local store consistent with the price API: it diffs
// the reference calendar against stored and blacklisted hours, fetches what is
// missing in calendar order, and memoizes hours that return no data.
type Synchronizer struct {
	source    source.PriceSource
	prices    storage.PriceStore
	blacklist storage.BlacklistStore
	items     storage.ItemStore
	logger    zerolog.Logger

	origin     time.Time
	margin     time.Duration
	flushEvery int
	now        func() time.Time
}

// New constructs a Synchronizer.
func New(cfg *config.Config, src source.PriceSource, prices storage.PriceStore, blacklist storage.BlacklistStore, items storage.ItemStore, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		source:     src,
		prices:     prices,
		blacklist:  blacklist,
		items:      items,
		logger:     logger.With().Str("component", "syncer").Logger(),
		origin:     cfg.OriginTime(),
		margin:     cfg.Source.SafetyMargin,
		flushEvery: cfg.Sync.FlushEvery,
		now:        time.Now,
	}
}

// Sync runs one incremental synchronisation pass. Re-running with no elapsed
// calendar hours and no faults is a no-op. On a source fault the pass aborts,
// but every blacklist entry and every flushed price batch stays durable, so a
// re-run only fetches the still-unresolved hours.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	var result Result

	calendar := source.ReferenceCalendar(s.origin, s.now(), s.margin)
	if len(calendar) == 0 {
		return result, fmt.Errorf("reference calendar is empty; origin is ahead of now minus margin")
	}

	if err := s.ensureBootstrap(ctx, calendar); err != nil {
		return result, err
	}

	missing, err := s.missingHours(ctx, calendar)
	if err != nil {
		return result, err
	}

	if len(missing) == 0 {
		s.logger.Info().Msg("no new data found")
		return result, nil
	}

	s.logger.Info().
		Int("missing", len(missing)).
		Time("first", missing[0].Datetime).
		Time("last", missing[len(missing)-1].Datetime).
		Msg("fetching missing hours")

	var batch []source.PriceRow
	batchHours := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.prices.AppendPrices(ctx, batch); err != nil {
			return fmt.Errorf("append price batch: %w", err)
		}
		result.NewRows += len(batch)
		s.logger.Debug().Int("rows", len(batch)).Msg("flushed price batch")
		batch = batch[:0]
		batchHours = 0
		return nil
	}

	for i, hour := range missing {
		select {
		case <-ctx.Done():
			if flushErr := flush(); flushErr != nil {
				return result, flushErr
			}
			return result, ctx.Err()
		default:
		}

		rows, fetchErr := s.source.FetchHour(ctx, hour.Timestamp)
		if fetchErr != nil {
			// Fail fast, but keep the progress already made durable.
			if flushErr := flush(); flushErr != nil {
				return result, flushErr
			}
			return result, fmt.Errorf("fetch hour %d: %w", hour.Timestamp, fetchErr)
		}

		if len(rows) == 0 {
			entry := storage.BlacklistEntry{Timestamp: hour.Timestamp, Datetime: hour.Datetime}
			if err := s.blacklist.AppendBlacklist(ctx, []storage.BlacklistEntry{entry}); err != nil {
				return result, fmt.Errorf("append blacklist entry: %w", err)
			}
			result.Blacklisted++
			s.logger.Info().Time("datetime", hour.Datetime).Msg("blacklisting hour, no data found")
			continue
		}

		batch = append(batch, rows...)
		batchHours++
		result.Fetched++

		s.logger.Debug().
			Int("progress", i+1).
			Int("total", len(missing)).
			Time("datetime", hour.Datetime).
			Msg("fetched hour")

		if batchHours >= s.flushEvery {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}

	if err := flush(); err != nil {
		return result, err
	}

	s.logger.Info().
		Int("fetched", result.Fetched).
		Int("new_rows", result.NewRows).
		Int("blacklisted", result.Blacklisted).
		Msg("sync complete")

	return result, nil
}

// ensureBootstrap initialises an empty store: the item catalog is fetched
// once, and the earliest calendar hours are seeded so connectivity is proven
// before the first full backfill.
func (s *Synchronizer) ensureBootstrap(ctx context.Context, calendar []source.CalendarHour) error {
	itemCount, err := s.items.CountItems(ctx)
	if err != nil {
		return err
	}
	if itemCount == 0 {
		s.logger.Info().Msg("empty catalog, fetching item mapping")
		catalog, fetchErr := s.source.FetchCatalog(ctx)
		if fetchErr != nil {
			return fmt.Errorf("fetch item catalog: %w", fetchErr)
		}
		if err := s.items.WriteItems(ctx, catalog); err != nil {
			return fmt.Errorf("write item catalog: %w", err)
		}
		s.logger.Info().Int("items", len(catalog)).Msg("item catalog stored")
	}

	priceCount, err := s.prices.CountPrices(ctx)
	if err != nil {
		return err
	}
	if priceCount > 0 {
		return nil
	}

	s.logger.Info().Int("hours", seedHours).Msg("empty store, seeding earliest hours")

	var seed []source.PriceRow
	for i := 0; i < seedHours && i < len(calendar); i++ {
		rows, fetchErr := s.source.FetchHour(ctx, calendar[i].Timestamp)
		if fetchErr != nil {
			return fmt.Errorf("seed hour %d: %w", calendar[i].Timestamp, fetchErr)
		}
		seed = append(seed, rows...)
	}
	if err := s.prices.AppendPrices(ctx, seed); err != nil {
		return fmt.Errorf("append seed rows: %w", err)
	}
	return nil
}

// missingHours diffs the calendar against stored and blacklisted hours,
// preserving calendar order.
func (s *Synchronizer) missingHours(ctx context.Context, calendar []source.CalendarHour) ([]source.CalendarHour, error) {
	stored, err := s.prices.StoredDatetimes(ctx)
	if err != nil {
		return nil, err
	}
	blacklisted, err := s.blacklist.ListBlacklist(ctx)
	if err != nil {
		return nil, err
	}

	resolved := make(map[int64]struct{}, len(stored)+len(blacklisted))
	for _, dt := range stored {
		resolved[dt.Unix()] = struct{}{}
	}
	for _, entry := range blacklisted {
		resolved[entry.Timestamp] = struct{}{}
	}

	var missing []source.CalendarHour
	for _, hour := range calendar {
		if _, ok := resolved[hour.Timestamp]; ok {
			continue
		}
		missing = append(missing, hour)
	}
	return missing, nil
}
