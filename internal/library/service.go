// Package library turns catalog rows into the listings the UI renders:
// sorted songs, search with history, favorites, folders and playlists.
//
// Reads never fail from the caller's point of view: storage errors are logged
// and an empty listing is returned so screens can show their empty state.
// User-initiated writes report success as a bool.
package library

import (
	"context"
	"time"

	"legato/internal/cache"
	"legato/internal/clock"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// DefaultHistoryLimit is the number of search history entries shown.
const DefaultHistoryLimit = 20

// Store is the slice of the catalog store the library needs.
type Store interface {
	ListSongs(ctx context.Context, sortKey models.SortKey) ([]models.Song, error)
	SearchSongs(ctx context.Context, query string) ([]models.Song, error)
	FavoriteSongs(ctx context.Context) ([]models.Song, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	IsFavorite(ctx context.Context, id string) (bool, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]models.Song, error)

	AddSearchHistory(ctx context.Context, query string, searchedAt time.Time) (int64, error)
	GetSearchHistory(ctx context.Context, limit int) ([]models.SearchHistoryEntry, error)
	DeleteSearchHistory(ctx context.Context, query string) (int64, error)
	ClearSearchHistory(ctx context.Context) error

	CreatePlaylist(ctx context.Context, name string, createdAt time.Time) (int64, error)
	GetAllPlaylists(ctx context.Context) ([]models.Playlist, error)
	GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error)
	GetPlaylistSongs(ctx context.Context, playlistID int64) ([]models.Song, error)
	AddSongToPlaylist(ctx context.Context, playlistID int64, songID string, addedAt time.Time) (bool, error)
	RemoveSongFromPlaylist(ctx context.Context, playlistID int64, songID string) (bool, error)
	IsSongInPlaylist(ctx context.Context, playlistID int64, songID string) (bool, error)
	DeletePlaylist(ctx context.Context, playlistID int64) error
	RenamePlaylist(ctx context.Context, playlistID int64, name string) error
}

// Options tune the service.
type Options struct {
	HistoryLimit   int
	FolderCacheTTL time.Duration // zero disables folder caching
}

// Service is the library query service.
type Service struct {
	store        Store
	logger       *logrus.Logger
	clock        clock.Clock
	historyLimit int
	folders      *cache.MemoryCache[[]models.Folder]
}

// NewService creates a library service over store.
func NewService(store Store, logger *logrus.Logger, clk clock.Clock, opts Options) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	s := &Service{
		store:        store,
		logger:       logger,
		clock:        clk,
		historyLimit: opts.HistoryLimit,
	}
	if opts.FolderCacheTTL > 0 {
		s.folders = cache.NewMemoryCache[[]models.Folder](opts.FolderCacheTTL, opts.FolderCacheTTL)
	}
	return s
}

// Close releases the folder cache.
func (s *Service) Close() {
	if s.folders != nil {
		s.folders.Close()
	}
}

// InvalidateCache drops derived listings. Call it after the catalog changes.
func (s *Service) InvalidateCache() {
	if s.folders != nil {
		s.folders.Clear()
	}
}

// ListSongs returns every song in the order named by sortKey. Unknown keys
// sort by date added.
func (s *Service) ListSongs(ctx context.Context, sortKey string) []models.Song {
	songs, err := s.store.ListSongs(ctx, models.ParseSortKey(sortKey))
	if err != nil {
		s.logger.WithError(err).WithField("sort", sortKey).Error("Failed to list songs")
		return []models.Song{}
	}
	return songs
}

// Search returns songs whose title contains query, newest first. A blank
// query returns nothing.
func (s *Service) Search(ctx context.Context, query string) []models.Song {
	query, verr := validateSearchQuery(query)
	if verr != nil || query == "" {
		return []models.Song{}
	}

	songs, err := s.store.SearchSongs(ctx, query)
	if err != nil {
		s.logger.WithError(err).WithField("query", query).Error("Failed to search songs")
		return []models.Song{}
	}
	return songs
}

// RecordSearch appends a trimmed, non-empty query to the search history.
func (s *Service) RecordSearch(ctx context.Context, query string) bool {
	query, verr := validateSearchQuery(query)
	if verr != nil || query == "" {
		return false
	}

	if _, err := s.store.AddSearchHistory(ctx, query, s.clock.Now()); err != nil {
		s.logger.WithError(err).WithField("query", query).Error("Failed to record search")
		return false
	}
	return true
}

// SubmitSearch records the query and returns its results.
func (s *Service) SubmitSearch(ctx context.Context, query string) []models.Song {
	s.RecordSearch(ctx, query)
	return s.Search(ctx, query)
}

// SearchHistory returns the most recent searches, newest first.
func (s *Service) SearchHistory(ctx context.Context) []models.SearchHistoryEntry {
	entries, err := s.store.GetSearchHistory(ctx, s.historyLimit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read search history")
		return []models.SearchHistoryEntry{}
	}
	return entries
}

// DeleteSearch removes every history entry with this query text.
func (s *Service) DeleteSearch(ctx context.Context, query string) bool {
	if _, err := s.store.DeleteSearchHistory(ctx, query); err != nil {
		s.logger.WithError(err).WithField("query", query).Error("Failed to delete search")
		return false
	}
	return true
}

// ClearSearchHistory removes all history entries.
func (s *Service) ClearSearchHistory(ctx context.Context) bool {
	if err := s.store.ClearSearchHistory(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to clear search history")
		return false
	}
	return true
}

// ListFavorites returns favorited songs, newest first.
func (s *Service) ListFavorites(ctx context.Context) []models.Song {
	songs, err := s.store.FavoriteSongs(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list favorites")
		return []models.Song{}
	}
	return songs
}

// SetFavorite sets a song's favorite flag.
func (s *Service) SetFavorite(ctx context.Context, songID string, favorite bool) bool {
	if err := s.store.SetFavorite(ctx, songID, favorite); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"song_id":  songID,
			"favorite": favorite,
		}).Error("Failed to set favorite")
		return false
	}
	return true
}

// IsFavorite reports whether a song is favorited. Unknown songs are not.
func (s *Service) IsFavorite(ctx context.Context, songID string) bool {
	favorite, err := s.store.IsFavorite(ctx, songID)
	if err != nil {
		s.logger.WithError(err).WithField("song_id", songID).Warn("Failed to read favorite")
		return false
	}
	return favorite
}

// ToggleFavorite flips a song's favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, songID string) (favorite bool, ok bool) {
	current, err := s.store.IsFavorite(ctx, songID)
	if err != nil {
		s.logger.WithError(err).WithField("song_id", songID).Error("Failed to read favorite")
		return false, false
	}
	if !s.SetFavorite(ctx, songID, !current) {
		return current, false
	}
	return !current, true
}

// RecentlyPlayed returns up to limit distinct songs, most recently played
// first.
func (s *Service) RecentlyPlayed(ctx context.Context, limit int) []models.Song {
	if limit < 1 {
		return []models.Song{}
	}
	songs, err := s.store.RecentlyPlayed(ctx, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list recently played songs")
		return []models.Song{}
	}
	return songs
}
