package library

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"legato/internal/database"
	"legato/internal/testutil"
	"legato/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *database.Database, *testutil.StubClock) {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	clk := testutil.FixedClock()
	svc := NewService(db, testutil.NewLogger(), clk, Options{FolderCacheTTL: time.Minute})
	t.Cleanup(svc.Close)
	return svc, db, clk
}

func seed(t *testing.T, db *database.Database, songs ...models.Song) {
	t.Helper()
	require.NoError(t, db.UpsertSongs(context.Background(), songs))
}

func at(id, uri string, modified int64) models.Song {
	_, name := FolderOf(uri)
	return models.Song{ID: id, Title: name + "-" + id + ".mp3", URI: uri, Duration: 100, ModificationTime: modified}
}

func songIDs(songs []models.Song) []string {
	out := make([]string, 0, len(songs))
	for _, s := range songs {
		out = append(out, s.ID)
	}
	return out
}

func TestFolderOf(t *testing.T) {
	tests := []struct {
		uri      string
		wantPath string
		wantName string
	}{
		{"/music/rock/a.mp3", "/music/rock", "rock"},
		{"file:///storage/emulated/0/Music/Jazz%20Standards/c.mp3", "/storage/emulated/0/Music/Jazz Standards", "Jazz Standards"},
		{"/a.mp3", "", RootFolderName},
		{"a.mp3", "", RootFolderName},
		{"file:///a.mp3", "", RootFolderName},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			path, name := FolderOf(tt.uri)
			assert.Equal(t, tt.wantPath, path)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestListFolders(t *testing.T) {
	ctx := context.Background()

	t.Run("groups and counts by folder", func(t *testing.T) {
		svc, db, _ := newTestService(t)
		seed(t, db,
			at("a", "/music/rock/a.mp3", 1),
			at("b", "/music/rock/b.mp3", 2),
			at("c", "/music/jazz/c.mp3", 3),
		)

		folders := svc.ListFolders(ctx)
		assert.Equal(t, []models.Folder{
			{Path: "/music/jazz", Name: "jazz", SongCount: 1},
			{Path: "/music/rock", Name: "rock", SongCount: 2},
		}, folders)
	})

	t.Run("same name in different paths stays separate", func(t *testing.T) {
		svc, db, _ := newTestService(t)
		seed(t, db,
			at("a", "/phone/Downloads/a.mp3", 1),
			at("b", "/sdcard/Downloads/b.mp3", 2),
			at("c", "/root.mp3", 3),
			at("d", "/music/beta/d.mp3", 4),
			at("e", "/music/Alpha/e.mp3", 5),
		)

		folders := svc.ListFolders(ctx)
		names := make([]string, 0, len(folders))
		for _, f := range folders {
			names = append(names, f.Name+"@"+f.Path)
		}
		assert.Equal(t, []string{
			"Alpha@/music/Alpha",
			"beta@/music/beta",
			"Downloads@/phone/Downloads",
			"Downloads@/sdcard/Downloads",
			"Root@",
		}, names)

		inPhone := svc.SongsInFolder(ctx, "/phone/Downloads")
		assert.Equal(t, []string{"a"}, songIDs(inPhone))
		atRoot := svc.SongsInFolder(ctx, "")
		assert.Equal(t, []string{"c"}, songIDs(atRoot))
	})

	t.Run("cached until invalidated", func(t *testing.T) {
		svc, db, _ := newTestService(t)
		seed(t, db, at("a", "/music/rock/a.mp3", 1))
		require.Len(t, svc.ListFolders(ctx), 1)

		seed(t, db, at("b", "/music/pop/b.mp3", 2))
		assert.Len(t, svc.ListFolders(ctx), 1)

		svc.InvalidateCache()
		assert.Len(t, svc.ListFolders(ctx), 2)
	})
}

func TestSongsInFolderOrdering(t *testing.T) {
	svc, db, _ := newTestService(t)
	seed(t, db,
		at("old", "/music/rock/a.mp3", 1),
		at("new", "/music/rock/b.mp3", 9),
		at("other", "/music/rockabilly/c.mp3", 5),
	)

	songs := svc.SongsInFolder(context.Background(), "/music/rock")
	assert.Equal(t, []string{"new", "old"}, songIDs(songs))
}

func TestSearchAndHistory(t *testing.T) {
	ctx := context.Background()
	svc, db, clk := newTestService(t)
	seed(t, db,
		models.Song{ID: "1", Title: "Blinding Lights.mp3", URI: "/m/1.mp3"},
		models.Song{ID: "2", Title: "Levitating.mp3", URI: "/m/2.mp3"},
	)

	t.Run("substring match", func(t *testing.T) {
		assert.Equal(t, []string{"1"}, songIDs(svc.Search(ctx, "light")))
	})

	t.Run("blank query is empty and unrecorded", func(t *testing.T) {
		assert.Empty(t, svc.SubmitSearch(ctx, "   "))
		assert.Empty(t, svc.SearchHistory(ctx))
	})

	t.Run("queries are trimmed before recording", func(t *testing.T) {
		got := svc.SubmitSearch(ctx, "  levi ")
		assert.Equal(t, []string{"2"}, songIDs(got))

		history := svc.SearchHistory(ctx)
		require.Len(t, history, 1)
		assert.Equal(t, "levi", history[0].Query)
		assert.True(t, history[0].SearchedAt.Equal(clk.Now()))
	})

	t.Run("history is capped and newest first", func(t *testing.T) {
		for i := 0; i < 25; i++ {
			clk.Advance(time.Second)
			require.True(t, svc.RecordSearch(ctx, fmt.Sprintf("q%02d", i)))
		}

		history := svc.SearchHistory(ctx)
		require.Len(t, history, DefaultHistoryLimit)
		assert.Equal(t, "q24", history[0].Query)
		assert.Equal(t, "q05", history[DefaultHistoryLimit-1].Query)
	})

	t.Run("repeated queries are kept", func(t *testing.T) {
		clk.Advance(time.Second)
		svc.RecordSearch(ctx, "q24")
		history := svc.SearchHistory(ctx)
		assert.Equal(t, "q24", history[0].Query)
		assert.Equal(t, "q24", history[1].Query)
	})

	t.Run("delete and clear", func(t *testing.T) {
		require.True(t, svc.DeleteSearch(ctx, "q24"))
		assert.NotEqual(t, "q24", svc.SearchHistory(ctx)[0].Query)

		require.True(t, svc.ClearSearchHistory(ctx))
		assert.Empty(t, svc.SearchHistory(ctx))
	})
}

func TestFavoritesRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t)
	seed(t, db, at("a", "/music/a.mp3", 1), at("b", "/music/b.mp3", 2))

	require.True(t, svc.SetFavorite(ctx, "a", true))
	assert.Equal(t, []string{"a"}, songIDs(svc.ListFavorites(ctx)))
	assert.True(t, svc.IsFavorite(ctx, "a"))

	require.True(t, svc.SetFavorite(ctx, "a", false))
	assert.Empty(t, svc.ListFavorites(ctx))

	fav, ok := svc.ToggleFavorite(ctx, "b")
	assert.True(t, ok)
	assert.True(t, fav)
	fav, ok = svc.ToggleFavorite(ctx, "b")
	assert.True(t, ok)
	assert.False(t, fav)

	assert.False(t, svc.SetFavorite(ctx, "missing", true))
	assert.False(t, svc.IsFavorite(ctx, "missing"))
	_, ok = svc.ToggleFavorite(ctx, "missing")
	assert.False(t, ok)
}

func TestPlaylists(t *testing.T) {
	ctx := context.Background()
	svc, db, clk := newTestService(t)
	seed(t, db, at("a", "/music/a.mp3", 1), at("b", "/music/b.mp3", 2))

	_, ok := svc.CreatePlaylist(ctx, "   ")
	assert.False(t, ok, "blank names are rejected")
	_, ok = svc.CreatePlaylist(ctx, "two\nlines")
	assert.False(t, ok)

	id, ok := svc.CreatePlaylist(ctx, " Gym ")
	require.True(t, ok)
	p, ok := svc.Playlist(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "Gym", p.Name)

	require.True(t, svc.AddSongToPlaylist(ctx, id, "a"))
	clk.Advance(time.Minute)
	require.True(t, svc.AddSongToPlaylist(ctx, id, "b"))
	require.True(t, svc.AddSongToPlaylist(ctx, id, "a"), "re-adding is not an error")

	playlists := svc.ListPlaylists(ctx)
	require.Len(t, playlists, 1)
	assert.Equal(t, 2, playlists[0].SongCount)
	assert.Equal(t, []string{"b", "a"}, songIDs(svc.PlaylistSongs(ctx, id)))

	assert.True(t, svc.IsSongInPlaylist(ctx, id, "a"))
	require.True(t, svc.RemoveSongFromPlaylist(ctx, id, "a"))
	assert.False(t, svc.IsSongInPlaylist(ctx, id, "a"))

	assert.False(t, svc.RenamePlaylist(ctx, id, ""))
	assert.False(t, svc.RenamePlaylist(ctx, id, strings.Repeat("x", 300)))
	require.True(t, svc.RenamePlaylist(ctx, id, "Cardio"))
	p, _ = svc.Playlist(ctx, id)
	assert.Equal(t, "Cardio", p.Name)

	assert.False(t, svc.AddSongToPlaylist(ctx, id, "missing"))

	require.True(t, svc.DeletePlaylist(ctx, id))
	assert.Empty(t, svc.ListPlaylists(ctx))
	assert.Empty(t, svc.PlaylistSongs(ctx, id))
	assert.False(t, svc.DeletePlaylist(ctx, id))
	_, ok = svc.Playlist(ctx, id)
	assert.False(t, ok)
}

func TestListSongsSortKeys(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t)
	seed(t, db,
		models.Song{ID: "1", Title: "beta.mp3", URI: "/m/1", Duration: 10, ModificationTime: 3},
		models.Song{ID: "2", Title: "Alpha.mp3", URI: "/m/2", Duration: 30, ModificationTime: 1},
		models.Song{ID: "3", Title: "gamma.mp3", URI: "/m/3", Duration: 20, ModificationTime: 2},
	)

	assert.Equal(t, []string{"2", "1", "3"}, songIDs(svc.ListSongs(ctx, "title(A-Z)")))
	assert.Equal(t, []string{"3", "1", "2"}, songIDs(svc.ListSongs(ctx, "title(Z-A)")))
	assert.Equal(t, []string{"2", "3", "1"}, songIDs(svc.ListSongs(ctx, "duration")))
	assert.Equal(t, []string{"1", "3", "2"}, songIDs(svc.ListSongs(ctx, "Date added")))
	assert.Equal(t, []string{"1", "3", "2"}, songIDs(svc.ListSongs(ctx, "")))
}

func TestRecentlyPlayed(t *testing.T) {
	ctx := context.Background()
	svc, db, clk := newTestService(t)
	seed(t, db, at("a", "/music/a.mp3", 1), at("b", "/music/b.mp3", 2))

	require.NoError(t, db.RecordPlay(ctx, "a", clk.Now()))
	require.NoError(t, db.RecordPlay(ctx, "b", clk.Now().Add(time.Minute)))
	require.NoError(t, db.RecordPlay(ctx, "a", clk.Now().Add(2*time.Minute)))

	assert.Equal(t, []string{"a", "b"}, songIDs(svc.RecentlyPlayed(ctx, 10)))
	assert.Empty(t, svc.RecentlyPlayed(ctx, 0))
}

func TestStorageFailuresDegradeToEmpty(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t)
	require.NoError(t, db.Close())

	assert.NotNil(t, svc.ListSongs(ctx, "duration"))
	assert.Empty(t, svc.ListSongs(ctx, "duration"))
	assert.Empty(t, svc.Search(ctx, "x"))
	assert.Empty(t, svc.ListFavorites(ctx))
	assert.Empty(t, svc.ListFolders(ctx))
	assert.Empty(t, svc.SongsInFolder(ctx, "/music"))
	assert.Empty(t, svc.SearchHistory(ctx))
	assert.Empty(t, svc.ListPlaylists(ctx))
	assert.Empty(t, svc.PlaylistSongs(ctx, 1))
	assert.Empty(t, svc.RecentlyPlayed(ctx, 5))

	assert.False(t, svc.RecordSearch(ctx, "x"))
	assert.False(t, svc.SetFavorite(ctx, "a", true))
	_, ok := svc.CreatePlaylist(ctx, "x")
	assert.False(t, ok)
	assert.False(t, svc.DeletePlaylist(ctx, 1))
}
