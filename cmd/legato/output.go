package main

import (
	"fmt"
	"io"
	"math"

	"legato/pkg/models"

	"github.com/mattn/go-runewidth"
)

const titleWidth = 48

// fit pads or truncates s to exactly width terminal cells.
func fit(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// formatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func formatDuration(seconds float64) string {
	total := int(math.Round(max(seconds, 0)))
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func printSongs(w io.Writer, songs []models.Song) {
	if len(songs) == 0 {
		fmt.Fprintln(w, "No songs.")
		return
	}
	for _, song := range songs {
		star := " "
		if song.IsFavorite {
			star = "*"
		}
		fmt.Fprintf(w, "%s %s %8s  %s\n", star, fit(song.Title, titleWidth), formatDuration(song.Duration), song.ID)
	}
}

func printFolders(w io.Writer, folders []models.Folder) {
	if len(folders) == 0 {
		fmt.Fprintln(w, "No folders.")
		return
	}
	for _, folder := range folders {
		fmt.Fprintf(w, "%s %5d  %s\n", fit(folder.Name, 24), folder.SongCount, folder.Path)
	}
}

func printPlaylists(w io.Writer, playlists []models.Playlist) {
	if len(playlists) == 0 {
		fmt.Fprintln(w, "No playlists.")
		return
	}
	for _, p := range playlists {
		fmt.Fprintf(w, "%4d  %s %5d songs\n", p.ID, fit(p.Name, 32), p.SongCount)
	}
}

func printHistory(w io.Writer, entries []models.SearchHistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recent searches.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s\n", e.SearchedAt.Local().Format("2006-01-02 15:04"), e.Query)
	}
}

func printSongStats(w io.Writer, ranked []models.SongStats) {
	for i, s := range ranked {
		artist := s.Artist
		if artist == "" {
			artist = "-"
		}
		fmt.Fprintf(w, "%3d. %s %s %5d plays %10s\n", i+1, fit(s.Title, 40), fit(artist, 20), s.PlayCount, formatDuration(s.TotalTime))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
