package database

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"legato/internal/config"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// newTestDB creates a catalog backed by a file in a temp directory.
func newTestDB(t *testing.T) *Database {
	t.Helper()
	return newTestDBWithDriver(t, "sqlite3")
}

func newTestDBWithDriver(t *testing.T, driver string) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DatabaseConfig{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Driver: driver,
	}
	db, err := NewDatabase(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func song(id, title string, duration float64, modified int64) models.Song {
	return models.Song{
		ID:               id,
		Title:            title,
		URI:              "file:///music/" + title,
		Duration:         duration,
		ModificationTime: modified,
	}
}

func ids(songs []models.Song) []string {
	out := make([]string, 0, len(songs))
	for _, s := range songs {
		out = append(out, s.ID)
	}
	return out
}

type stubSource struct {
	assets []models.Asset
	err    error
	calls  int
}

func (s *stubSource) FetchAssets(context.Context) ([]models.Asset, error) {
	s.calls++
	return s.assets, s.err
}

func TestNewDatabase(t *testing.T) {
	t.Run("initialize schema is idempotent", func(t *testing.T) {
		db := newTestDB(t)
		ctx := context.Background()

		require.NoError(t, db.InitializeSchema(ctx))
		require.NoError(t, db.InitializeSchema(ctx))

		status, err := db.SchemaStatus()
		require.NoError(t, err)
		assert.True(t, status.Current())
	})

	t.Run("reopening an existing file keeps data", func(t *testing.T) {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "catalog.db"), Driver: "sqlite3"}
		ctx := context.Background()

		db, err := NewDatabase(ctx, cfg, logger)
		require.NoError(t, err)
		require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 10, 1)}))
		require.NoError(t, db.Close())

		db, err = NewDatabase(ctx, cfg, logger)
		require.NoError(t, err)
		defer db.Close()
		count, err := db.CountSongs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("foreign keys are enforced", func(t *testing.T) {
		db := newTestDB(t)
		err := db.RecordPlay(context.Background(), "missing", baseTime)
		assert.Error(t, err)
	})

	t.Run("pure go driver", func(t *testing.T) {
		db := newTestDBWithDriver(t, "sqlite")
		ctx := context.Background()

		require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 10, 1)}))
		songs, err := db.ListSongs(ctx, models.SortDateAdded)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(songs))
		assert.Error(t, db.RecordPlay(ctx, "missing", baseTime), "foreign keys must be on for the pure go driver too")
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewDatabase(context.Background(), config.DatabaseConfig{Path: ":memory:", Driver: "postgres"}, nil)
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestUpsertSongs(t *testing.T) {
	ctx := context.Background()

	t.Run("second upsert overwrites without duplicating", func(t *testing.T) {
		db := newTestDB(t)
		batch := []models.Song{song("a", "a.mp3", 100, 1), song("b", "b.mp3", 200, 2)}
		require.NoError(t, db.UpsertSongs(ctx, batch))

		batch[0].Duration = 150
		batch[0].Title = "a (remaster).mp3"
		require.NoError(t, db.UpsertSongs(ctx, batch))

		count, err := db.CountSongs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		got, err := db.GetSong(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 150.0, got.Duration)
		assert.Equal(t, "a (remaster).mp3", got.Title)
	})

	t.Run("favorite flag survives a rescan", func(t *testing.T) {
		db := newTestDB(t)
		require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 100, 1)}))
		require.NoError(t, db.SetFavorite(ctx, "a", true))

		require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 100, 5)}))

		fav, err := db.IsFavorite(ctx, "a")
		require.NoError(t, err)
		assert.True(t, fav)
	})

	t.Run("same uri under a new id replaces the stale row", func(t *testing.T) {
		db := newTestDB(t)
		require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("old", "a.mp3", 100, 1)}))
		require.NoError(t, db.RecordPlay(ctx, "old", baseTime))

		require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("new", "a.mp3", 100, 1)}))

		_, err := db.GetSong(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)
		got, err := db.GetSong(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, "file:///music/a.mp3", got.URI)

		totals, err := db.ListeningTotals(ctx, time.UnixMilli(0))
		require.NoError(t, err)
		assert.Zero(t, totals.TotalPlays)
	})

	t.Run("failed batch leaves nothing behind", func(t *testing.T) {
		db := newTestDB(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := db.UpsertSongs(cancelled, []models.Song{song("a", "a.mp3", 1, 1), song("b", "b.mp3", 1, 1)})
		require.Error(t, err)

		count, err := db.CountSongs(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("empty batch re-fetches from the asset source", func(t *testing.T) {
		db := newTestDB(t)
		source := &stubSource{assets: []models.Asset{
			{ID: "x", Filename: "x.mp3", URI: "file:///music/x.mp3", Duration: 60, ModificationTime: 10},
			{ID: "y", Filename: "y.mp3", URI: "file:///music/y.mp3", Duration: 90, ModificationTime: 20},
			{ID: "", Filename: "broken.mp3", URI: "file:///music/broken.mp3"},
		}}
		db.SetAssetSource(source)

		require.NoError(t, db.UpsertSongs(ctx, nil))
		assert.Equal(t, 1, source.calls)

		songs, err := db.ListSongs(ctx, models.SortDateAdded)
		require.NoError(t, err)
		assert.Equal(t, []string{"y", "x"}, ids(songs))
		assert.Equal(t, "x.mp3", songs[1].Title)
	})

	t.Run("invalid batch also re-fetches", func(t *testing.T) {
		db := newTestDB(t)
		source := &stubSource{}
		db.SetAssetSource(source)

		require.NoError(t, db.UpsertSongs(ctx, []models.Song{{Title: "no id"}}))
		assert.Equal(t, 1, source.calls)
	})

	t.Run("source failure propagates", func(t *testing.T) {
		db := newTestDB(t)
		db.SetAssetSource(&stubSource{err: errors.New("media library unavailable")})

		err := db.UpsertSongs(ctx, []models.Song{})
		assert.ErrorContains(t, err, "media library unavailable")
	})

	t.Run("empty batch without a source is a no-op", func(t *testing.T) {
		db := newTestDB(t)
		assert.NoError(t, db.UpsertSongs(ctx, nil))
	})
}

func TestReconcileSongs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.UpsertSongs(ctx, []models.Song{
		song("keep", "keep.mp3", 10, 1),
		song("gone", "gone.mp3", 10, 2),
	}))
	playlistID, err := db.CreatePlaylist(ctx, "mix", baseTime)
	require.NoError(t, err)
	_, err = db.AddSongToPlaylist(ctx, playlistID, "gone", baseTime)
	require.NoError(t, err)
	require.NoError(t, db.RecordPlay(ctx, "gone", baseTime))

	t.Run("empty enumeration is refused", func(t *testing.T) {
		removed, err := db.ReconcileSongs(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, removed)
		count, _ := db.CountSongs(ctx)
		assert.Equal(t, 2, count)
	})

	t.Run("removes songs and dependents", func(t *testing.T) {
		removed, err := db.ReconcileSongs(ctx, []string{"keep"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		songs, err := db.ListSongs(ctx, models.SortDateAdded)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, ids(songs))

		members, err := db.GetPlaylistSongs(ctx, playlistID)
		require.NoError(t, err)
		assert.Empty(t, members)

		totals, err := db.ListeningTotals(ctx, time.UnixMilli(0))
		require.NoError(t, err)
		assert.Zero(t, totals.TotalPlays)
	})
}

func TestDeleteSongByURI(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 10, 1)}))

	require.NoError(t, db.DeleteSongByURI(ctx, "file:///music/a.mp3"))
	assert.ErrorIs(t, db.DeleteSongByURI(ctx, "file:///music/a.mp3"), ErrNotFound)
}

func TestListSongs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertSongs(ctx, []models.Song{
		song("1", "banana.mp3", 120, 300),
		song("2", "Apple.mp3", 300, 100),
		song("3", "cherry.mp3", 60, 200),
	}))

	tests := []struct {
		sort models.SortKey
		want []string
	}{
		{models.SortTitleAsc, []string{"2", "1", "3"}},
		{models.SortTitleDesc, []string{"3", "1", "2"}},
		{models.SortDuration, []string{"2", "1", "3"}},
		{models.SortDateAdded, []string{"1", "3", "2"}},
		{models.SortKey("by mood"), []string{"1", "3", "2"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			songs, err := db.ListSongs(ctx, tt.sort)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(songs))
		})
	}
}

func TestSearchSongs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertSongs(ctx, []models.Song{
		song("1", "Blinding Lights.mp3", 200, 1),
		song("2", "Levitating.mp3", 200, 2),
		song("3", "100% Pure_Love.mp3", 200, 3),
		song("4", "Highlights.mp3", 200, 4),
	}))

	t.Run("case-insensitive substring, newest first", func(t *testing.T) {
		songs, err := db.SearchSongs(ctx, "light")
		require.NoError(t, err)
		assert.Equal(t, []string{"4", "1"}, ids(songs))
	})

	t.Run("wildcards match literally", func(t *testing.T) {
		songs, err := db.SearchSongs(ctx, "0%")
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, ids(songs))

		songs, err = db.SearchSongs(ctx, "e_L")
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, ids(songs))

		songs, err = db.SearchSongs(ctx, "g_")
		require.NoError(t, err)
		assert.Empty(t, songs)
	})

	t.Run("no match is empty, not nil", func(t *testing.T) {
		songs, err := db.SearchSongs(ctx, "polka")
		require.NoError(t, err)
		assert.NotNil(t, songs)
		assert.Empty(t, songs)
	})
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 1, 1), song("b", "b.mp3", 1, 2)}))

	require.NoError(t, db.SetFavorite(ctx, "a", true))
	require.NoError(t, db.SetFavorite(ctx, "a", true), "setting the same value again is fine")

	favs, err := db.FavoriteSongs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(favs))

	require.NoError(t, db.SetFavorite(ctx, "a", false))
	favs, err = db.FavoriteSongs(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)

	assert.ErrorIs(t, db.SetFavorite(ctx, "missing", true), ErrNotFound)
	_, err = db.IsFavorite(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlaylists(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertSongs(ctx, []models.Song{song("a", "a.mp3", 1, 1), song("b", "b.mp3", 1, 2)}))

	older, err := db.CreatePlaylist(ctx, "Road trip", baseTime)
	require.NoError(t, err)
	newer, err := db.CreatePlaylist(ctx, "Focus", baseTime.Add(time.Hour))
	require.NoError(t, err)

	t.Run("add is idempotent", func(t *testing.T) {
		added, err := db.AddSongToPlaylist(ctx, older, "a", baseTime)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = db.AddSongToPlaylist(ctx, older, "a", baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, added)

		in, err := db.IsSongInPlaylist(ctx, older, "a")
		require.NoError(t, err)
		assert.True(t, in)
	})

	t.Run("listing carries live counts, newest first", func(t *testing.T) {
		_, err := db.AddSongToPlaylist(ctx, older, "b", baseTime.Add(time.Minute))
		require.NoError(t, err)

		playlists, err := db.GetAllPlaylists(ctx)
		require.NoError(t, err)
		require.Len(t, playlists, 2)
		assert.Equal(t, newer, playlists[0].ID)
		assert.Equal(t, 0, playlists[0].SongCount)
		assert.Equal(t, 2, playlists[1].SongCount)
		assert.True(t, playlists[1].CreatedAt.Equal(baseTime))
	})

	t.Run("songs ordered by time added", func(t *testing.T) {
		songs, err := db.GetPlaylistSongs(ctx, older)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids(songs))
	})

	t.Run("remove", func(t *testing.T) {
		removed, err := db.RemoveSongFromPlaylist(ctx, older, "b")
		require.NoError(t, err)
		assert.True(t, removed)

		in, err := db.IsSongInPlaylist(ctx, older, "b")
		require.NoError(t, err)
		assert.False(t, in)
	})

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, db.RenamePlaylist(ctx, newer, "Deep focus"))
		p, err := db.GetPlaylist(ctx, newer)
		require.NoError(t, err)
		assert.Equal(t, "Deep focus", p.Name)
		assert.ErrorIs(t, db.RenamePlaylist(ctx, 999, "x"), ErrNotFound)
	})

	t.Run("delete cascades membership", func(t *testing.T) {
		require.NoError(t, db.DeletePlaylist(ctx, older))

		_, err := db.GetPlaylist(ctx, older)
		assert.ErrorIs(t, err, ErrNotFound)
		in, err := db.IsSongInPlaylist(ctx, older, "a")
		require.NoError(t, err)
		assert.False(t, in)
		assert.ErrorIs(t, db.DeletePlaylist(ctx, older), ErrNotFound)
	})

	t.Run("adding to a missing playlist fails", func(t *testing.T) {
		_, err := db.AddSongToPlaylist(ctx, 12345, "a", baseTime)
		assert.Error(t, err)
	})
}

func TestSearchHistory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for i, q := range []string{"queen", "abba", "queen", "bach"} {
		_, err := db.AddSearchHistory(ctx, q, baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	entries, err := db.GetSearchHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bach", entries[0].Query)
	assert.Equal(t, "queen", entries[1].Query)
	assert.Equal(t, "abba", entries[2].Query)

	removed, err := db.DeleteSearchHistory(ctx, "queen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	pruned, err := db.PruneSearchHistory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	entries, err = db.GetSearchHistory(ctx, 20)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bach", entries[0].Query)

	require.NoError(t, db.ClearSearchHistory(ctx))
	entries, err = db.GetSearchHistory(ctx, 20)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPermissions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, found, err := db.GetPermission(ctx, models.PermissionMedia)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.SetPermission(ctx, models.PermissionMedia, models.PermissionDenied))
	require.NoError(t, db.SetPermission(ctx, models.PermissionMedia, models.PermissionGranted))

	status, found, err := db.GetPermission(ctx, models.PermissionMedia)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.PermissionGranted, status)
}

func TestPlayAggregates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertSongs(ctx, []models.Song{
		song("x", "x.mp3", 200, 1),
		song("y", "y.mp3", 100, 2),
		song("z", "z.mp3", 50, 3),
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, db.RecordPlay(ctx, "x", baseTime.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, db.RecordPlay(ctx, "y", baseTime.Add(10*time.Minute)))
	require.NoError(t, db.RecordPlay(ctx, "z", baseTime.Add(-48*time.Hour)))

	t.Run("totals within window", func(t *testing.T) {
		stats, err := db.ListeningTotals(ctx, baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.ListeningStats{TotalPlays: 4, TotalTime: 700}, stats)
	})

	t.Run("empty window is zero", func(t *testing.T) {
		stats, err := db.ListeningTotals(ctx, baseTime.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.ListeningStats{}, stats)
	})

	t.Run("most played ranking", func(t *testing.T) {
		ranked, err := db.MostPlayed(ctx, baseTime, 10)
		require.NoError(t, err)
		require.Len(t, ranked, 2)
		assert.Equal(t, "x", ranked[0].ID)
		assert.Equal(t, int64(3), ranked[0].PlayCount)
		assert.Equal(t, 600.0, ranked[0].TotalTime)
		assert.Equal(t, "y", ranked[1].ID)

		ranked, err = db.MostPlayed(ctx, time.UnixMilli(0), 1)
		require.NoError(t, err)
		assert.Len(t, ranked, 1)
	})

	t.Run("ties broken by total time", func(t *testing.T) {
		// y and z both end up with two plays; y's add up to more time.
		require.NoError(t, db.RecordPlay(ctx, "z", baseTime.Add(time.Hour)))
		require.NoError(t, db.RecordPlay(ctx, "y", baseTime.Add(time.Hour)))
		ranked, err := db.MostPlayed(ctx, time.UnixMilli(0), 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y", "z"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
	})

	t.Run("play counts for sampling", func(t *testing.T) {
		weighted, err := db.SongsWithPlayCounts(ctx)
		require.NoError(t, err)
		counts := map[string]int64{}
		for _, w := range weighted {
			counts[w.ID] = w.PlayCount
		}
		assert.Equal(t, map[string]int64{"x": 3, "y": 2, "z": 2}, counts)
	})

	t.Run("recently played is distinct", func(t *testing.T) {
		recent, err := db.RecentlyPlayed(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"y", "z", "x"}, ids(recent))
	})
}

func TestEmptyCatalogReads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	songs, err := db.ListSongs(ctx, models.SortTitleAsc)
	require.NoError(t, err)
	assert.Empty(t, songs)

	favs, err := db.FavoriteSongs(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)

	playlists, err := db.GetAllPlaylists(ctx)
	require.NoError(t, err)
	assert.Empty(t, playlists)

	ranked, err := db.MostPlayed(ctx, time.UnixMilli(0), 5)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	_, err = db.GetSong(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
