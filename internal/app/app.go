package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ge-price-pipeline/internal/config"
	"ge-price-pipeline/internal/scheduler"
	"ge-price-pipeline/internal/source"
	"ge-price-pipeline/internal/storage"
	"ge-price-pipeline/internal/syncer"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() source.PriceSource {
	return source.NewWiki(source.WikiOptions{
		BaseURL:   a.Config.Source.BaseURL,
		UserAgent: a.Config.Source.UserAgent,
		Timeout:   a.Config.Source.RequestTimeout,
	}, a.Logger)
}

func (a *App) openStore() (*storage.Store, func(), error) {
	db, err := storage.Open(a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(db)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newSyncer(store *storage.Store) *syncer.Synchronizer {
	return syncer.New(a.Config, a.newSource(), store, store, store, a.Logger)
}

// Run executes the long-running mode: one sync per scheduler interval.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	sync := a.newSyncer(store)

	a.Logger.Info().Msg("starting sync service")
	err = sched.Run(ctx, func(ctx context.Context) error {
		_, syncErr := sync.Sync(ctx)
		return syncErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("sync service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sync service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the cleaned panel.
type ExportOptions struct {
	NHours    int
	ItemIDs   []int64
	From      *time.Time
	To        *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
