package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// AssetSource yields a full enumeration of the media library.
type AssetSource interface {
	FetchAssets(ctx context.Context) ([]models.Asset, error)
}

// Store is the slice of the catalog store ingestion writes to.
type Store interface {
	UpsertSongs(ctx context.Context, songs []models.Song) error
	ReconcileSongs(ctx context.Context, keepIDs []string) (int64, error)
	DeleteSongByURI(ctx context.Context, uri string) error
}

// Result summarises a sync.
type Result struct {
	Upserted int           `json:"upserted"`
	Removed  int64         `json:"removed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Syncer runs full library syncs. Concurrent calls are serialised.
type Syncer struct {
	source AssetSource
	store  Store
	logger *logrus.Logger
	onSync func()
	mu     sync.Mutex
}

// NewSyncer creates a syncer copying source into store.
func NewSyncer(source AssetSource, store Store, logger *logrus.Logger) *Syncer {
	return &Syncer{source: source, store: store, logger: logger}
}

// OnSync registers a hook run after every sync that changed the catalog.
func (s *Syncer) OnSync(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSync = fn
}

// Sync enumerates the library, upserts every asset and deletes catalog rows
// for files that are gone. An empty enumeration leaves the catalog untouched.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	assets, err := s.source.FetchAssets(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to enumerate library: %w", err)
	}

	if len(assets) == 0 {
		s.logger.Warn("Library enumeration returned no audio files, leaving catalog unchanged")
		return Result{Elapsed: time.Since(start)}, nil
	}

	songs := make([]models.Song, 0, len(assets))
	ids := make([]string, 0, len(assets))
	for _, asset := range assets {
		songs = append(songs, asset.Song())
		ids = append(ids, asset.ID)
	}

	if err := s.store.UpsertSongs(ctx, songs); err != nil {
		return Result{}, err
	}
	removed, err := s.store.ReconcileSongs(ctx, ids)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Upserted: len(songs),
		Removed:  removed,
		Elapsed:  time.Since(start),
	}
	s.logger.WithFields(logrus.Fields{
		"upserted": result.Upserted,
		"removed":  result.Removed,
		"elapsed":  result.Elapsed,
	}).Info("Library sync complete")

	if s.onSync != nil {
		s.onSync()
	}
	return result, nil
}
