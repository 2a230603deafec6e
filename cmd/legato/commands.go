package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"legato/internal/app"
	"legato/internal/stats"
	"legato/pkg/models"

	"github.com/spf13/cobra"
)

var errFailed = errors.New("operation failed, see log for details")

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Sync the catalog with the music directory",
	Long: `Enumerate the music directory, add or update every audio file in the
catalog and remove songs whose files are gone, together with their playlist
entries and play history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Sync(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Synced %s, removed %d in %s\n",
				plural(result.Upserted, "song"), result.Removed, result.Elapsed.Round(time.Millisecond))
			return nil
		})
	},
}

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "List every song",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sortKey, _ := cmd.Flags().GetString("sort")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printSongs(out(cmd), a.Library.ListSongs(ctx, sortKey))
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find songs whose title contains the query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, _ := cmd.Flags().GetBool("record")
		query := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if record {
				printSongs(out(cmd), a.Library.SubmitSearch(ctx, query))
			} else {
				printSongs(out(cmd), a.Library.Search(ctx, query))
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent searches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printHistory(out(cmd), a.Library.SearchHistory(ctx))
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every recent search",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return check(a.Library.ClearSearchHistory(ctx))
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <query>",
	Short: "Forget one search query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return check(a.Library.DeleteSearch(ctx, strings.Join(args, " ")))
		})
	},
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List favorite songs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printSongs(out(cmd), a.Library.ListFavorites(ctx))
			return nil
		})
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <song-id>",
	Short: "Mark a song as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return check(a.Library.SetFavorite(ctx, args[0], !off))
		})
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List folders derived from song locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printFolders(out(cmd), a.Library.ListFolders(ctx))
			return nil
		})
	},
}

var folderCmd = &cobra.Command{
	Use:   "folder [path]",
	Short: "List the songs in one folder",
	Long:  `List the songs whose folder path, as shown by "legato folders", equals path. Without a path, songs at the root are listed.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printSongs(out(cmd), a.Library.SongsInFolder(ctx, path))
			return nil
		})
	},
}

var playlistsCmd = &cobra.Command{
	Use:   "playlists",
	Short: "List and edit playlists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printPlaylists(out(cmd), a.Library.ListPlaylists(ctx))
			return nil
		})
	},
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty playlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id, ok := a.Library.CreatePlaylist(ctx, strings.Join(args, " "))
			if !ok {
				return errFailed
			}
			fmt.Fprintf(out(cmd), "Created playlist %d\n", id)
			return nil
		})
	},
}

var playlistShowCmd = &cobra.Command{
	Use:   "show <playlist-id>",
	Short: "List the songs in a playlist, most recently added first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			playlist, ok := a.Library.Playlist(ctx, id)
			if !ok {
				return fmt.Errorf("playlist %d not found", id)
			}
			fmt.Fprintf(out(cmd), "%s (%s)\n", playlist.Name, plural(playlist.SongCount, "song"))
			printSongs(out(cmd), a.Library.PlaylistSongs(ctx, id))
			return nil
		})
	},
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <playlist-id> <song-id>",
	Short: "Add a song to a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Library.AddSongToPlaylist(ctx, id, args[1]) {
				fmt.Fprintln(out(cmd), "Song not added (already in the playlist, or unknown song or playlist)")
			}
			return nil
		})
	},
}

var playlistRemoveCmd = &cobra.Command{
	Use:   "remove <playlist-id> <song-id>",
	Short: "Remove a song from a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Library.RemoveSongFromPlaylist(ctx, id, args[1]) {
				fmt.Fprintln(out(cmd), "Song was not in the playlist")
			}
			return nil
		})
	},
}

var playlistRenameCmd = &cobra.Command{
	Use:   "rename <playlist-id> <name>",
	Short: "Rename a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return check(a.Library.RenamePlaylist(ctx, id, strings.Join(args[1:], " ")))
		})
	},
}

var playlistDeleteCmd = &cobra.Command{
	Use:   "delete <playlist-id>",
	Short: "Delete a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return check(a.Library.DeletePlaylist(ctx, id))
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show listening time and most played songs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rangeName, _ := cmd.Flags().GetString("range")
		limit, _ := cmd.Flags().GetInt("limit")
		r, err := stats.ParseRange(rangeName)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report := a.Stats.Report(ctx, r, limit)
			w := out(cmd)
			fmt.Fprintf(w, "%s: %s, %s listened\n", r, plural(int(report.Stats.TotalPlays), "play"), formatDuration(report.Stats.TotalTime))
			printSongStats(w, report.TopSongs)
			return nil
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently played songs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printSongs(out(cmd), a.Library.RecentlyPlayed(ctx, limit))
			return nil
		})
	},
}

var mixCmd = &cobra.Command{
	Use:   "mix",
	Short: "Show today's mix, favoring favorites and often played songs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if limit < 1 {
				limit = a.Config.Recommend.DailyMixSize
			}
			printSongs(out(cmd), a.Recommend.DailyMix(ctx, limit))
			return nil
		})
	},
}

var shuffleCmd = &cobra.Command{
	Use:   "shuffle",
	Short: "List every song in random order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			printSongs(out(cmd), a.Recommend.ShuffleAll(ctx))
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog schema version, size and media access",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			schema, err := a.DB.SchemaStatus()
			if err != nil {
				return err
			}
			count, err := a.DB.CountSongs(ctx)
			if err != nil {
				return err
			}
			access, found, err := a.DB.GetPermission(ctx, models.PermissionMedia)
			if err != nil {
				return err
			}
			if !found {
				access = "unknown"
			}

			w := out(cmd)
			fmt.Fprintf(w, "Schema:       version %d (latest %d)", schema.Version, schema.Latest)
			if schema.Dirty {
				fmt.Fprint(w, ", dirty")
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Songs:        %d\n", count)
			fmt.Fprintf(w, "Library:      %s\n", a.Config.Music.LibraryPath)
			fmt.Fprintf(w, "Media access: %s\n", access)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the catalog in sync until interrupted",
	Long: `Sync the catalog on startup (unless scan_on_startup is off), then watch the
music directory for changes and rescan on the configured schedule until
SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Bootstrap(ctx) {
				return errors.New("catalog is not usable")
			}
			if err := a.Run(ctx); err != nil {
				return err
			}
			a.Logger.Info("Received shutdown signal")
			return nil
		})
	},
}

func init() {
	songsCmd.Flags().StringP("sort", "s", string(models.SortDateAdded),
		fmt.Sprintf("sort order: %q, %q, %q or %q", models.SortTitleAsc, models.SortTitleDesc, models.SortDuration, models.SortDateAdded))
	searchCmd.Flags().Bool("record", false, "add the query to the search history")
	favoriteCmd.Flags().Bool("off", false, "remove the song from favorites instead")
	statsCmd.Flags().StringP("range", "r", string(stats.AllTime), "time range: today, week, month, year or all")
	statsCmd.Flags().IntP("limit", "n", 10, "number of most played songs to show")
	recentCmd.Flags().IntP("limit", "n", 20, "number of songs to show")
	mixCmd.Flags().IntP("limit", "n", 0, "mix size (default from config)")

	historyCmd.AddCommand(historyClearCmd, historyDeleteCmd)
	playlistsCmd.AddCommand(playlistCreateCmd, playlistShowCmd, playlistAddCmd, playlistRemoveCmd, playlistRenameCmd, playlistDeleteCmd)

	rootCmd.AddCommand(
		scanCmd,
		songsCmd,
		searchCmd,
		historyCmd,
		favoritesCmd,
		favoriteCmd,
		foldersCmd,
		folderCmd,
		playlistsCmd,
		statsCmd,
		recentCmd,
		mixCmd,
		shuffleCmd,
		statusCmd,
		watchCmd,
	)
}

func parsePlaylistID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid playlist id %q", s)
	}
	return id, nil
}

func check(ok bool) error {
	if !ok {
		return errFailed
	}
	return nil
}
