// Package app wires the catalog store, services and ingestion into one
// process-wide object.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"legato/internal/config"
	"legato/internal/database"
	"legato/internal/ingest"
	"legato/internal/library"
	"legato/internal/metadata"
	"legato/internal/player"
	"legato/internal/recommend"
	"legato/internal/stats"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	_ library.Store        = (*database.Database)(nil)
	_ stats.Store          = (*database.Database)(nil)
	_ recommend.Store      = (*database.Database)(nil)
	_ player.PlayRecorder  = (*database.Database)(nil)
	_ ingest.Store         = (*database.Database)(nil)
	_ ingest.HistoryPruner = (*database.Database)(nil)
	_ database.AssetSource = (*ingest.Scanner)(nil)
	_ ingest.AssetLibrary  = (*ingest.DirectoryLibrary)(nil)
)

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	DB        *database.Database
	Library   *library.Service
	Stats     *stats.Aggregator
	Recommend *recommend.Sampler
	Queue     *player.Queue
	Syncer    *ingest.Syncer

	directory *ingest.DirectoryLibrary
	watcher   *ingest.Watcher
	scheduler *ingest.Scheduler
}

// New opens the catalog and builds the services on top of it.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := database.NewDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	extractor := metadata.NewExtractor(cfg.Music.SupportedFormats, logger)
	directory := ingest.NewDirectoryLibrary(cfg.Music.LibraryPath, extractor, logger)
	scanner := ingest.NewScanner(directory, cfg.Music.PageSize)
	db.SetAssetSource(scanner)

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Library: library.NewService(db, logger, nil, library.Options{
			HistoryLimit:   cfg.Library.SearchHistoryLimit,
			FolderCacheTTL: time.Duration(cfg.Library.FolderCacheTTLSecond) * time.Second,
		}),
		Stats:     stats.NewAggregator(db, logger, nil),
		Recommend: recommend.NewSampler(db, logger, nil, recommend.Options{SeedByDay: cfg.Recommend.SeedByDay}),
		Queue:     player.NewQueue(db, nil, logger),
		Syncer:    ingest.NewSyncer(scanner, db, logger),
		directory: directory,
	}

	a.Syncer.OnSync(a.Library.InvalidateCache)
	a.watcher = ingest.NewWatcher(directory, db, logger, ingest.WatcherOptions{
		OnChange: a.Library.InvalidateCache,
	})

	if cfg.Music.RescanSchedule != "" {
		a.scheduler, err = ingest.NewScheduler(cfg.Music.RescanSchedule, a.Syncer, db, cfg.Library.SearchHistoryKeep, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Bootstrap prepares the catalog on startup: it ensures the schema, records
// whether the library directory is readable as the media permission, and
// syncs the library when access is granted and scan_on_startup is set. It
// reports whether the catalog is usable.
func (a *App) Bootstrap(ctx context.Context) bool {
	if err := a.DB.InitializeSchema(ctx); err != nil {
		a.Logger.WithError(err).Error("Failed to initialize catalog schema")
		return false
	}

	status := models.PermissionGranted
	if _, err := os.ReadDir(a.directory.Root()); err != nil {
		a.Logger.WithError(err).WithField("library_path", a.directory.Root()).Warn("Music library is not readable")
		status = models.PermissionDenied
	}
	if err := a.DB.SetPermission(ctx, models.PermissionMedia, status); err != nil {
		a.Logger.WithError(err).Error("Failed to record media permission")
	}

	granted, found, err := a.DB.GetPermission(ctx, models.PermissionMedia)
	if err != nil || !found || granted != models.PermissionGranted {
		a.Logger.Info("Media access not granted, skipping library sync")
		return true
	}

	if !a.Config.Music.ScanOnStartup {
		a.Logger.Info("Skipping library scan (disabled in config)")
		return true
	}
	if _, err := a.Sync(ctx); err != nil {
		a.Logger.WithError(err).Error("Initial library sync failed")
	}
	return true
}

// Sync runs a full library sync.
func (a *App) Sync(ctx context.Context) (ingest.Result, error) {
	return a.Syncer.Sync(ctx)
}

// Run starts the file watcher and rescan scheduler, as configured, and blocks
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Music.WatchForChanges {
		if err := a.watcher.Start(); err != nil {
			a.Logger.WithError(err).Warn("Could not start file watcher")
		} else {
			defer a.watcher.Stop()
		}
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		defer a.scheduler.Stop()
	}

	a.Logger.WithField("library_path", a.directory.Root()).Info("Legato is watching the music library")
	<-ctx.Done()
	return nil
}

// Close waits for pending play recordings and closes the catalog.
func (a *App) Close() error {
	a.Queue.Close()
	a.Library.Close()
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close catalog: %w", err)
	}
	return nil
}
