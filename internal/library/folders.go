package library

import (
	"context"
	"net/url"
	"slices"
	"sort"
	"strings"

	"legato/pkg/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// RootFolderName is the display name for songs with no parent directory.
const RootFolderName = "Root"

const foldersCacheKey = "folders"

// FolderOf derives a song's folder from its uri: the path with the last
// segment removed. File URLs are unescaped first. Songs directly under the
// root have an empty path and the display name "Root".
func FolderOf(uri string) (path, name string) {
	p := uri
	if u, err := url.Parse(uri); err == nil && len(u.Scheme) > 1 {
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}

	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "", RootFolderName
	}

	path = p[:idx]
	name = path[strings.LastIndex(path, "/")+1:]
	if name == "" {
		name = RootFolderName
	}
	return path, name
}

// ListFolders groups songs by folder, sorted by display name using locale
// collation. Folders that share a display name stay separate and are ordered
// by full path.
func (s *Service) ListFolders(ctx context.Context) []models.Folder {
	if s.folders != nil {
		if cached, ok := s.folders.Get(foldersCacheKey); ok {
			return slices.Clone(cached)
		}
	}

	songs, err := s.store.ListSongs(ctx, models.SortDateAdded)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list songs for folders")
		return []models.Folder{}
	}

	byPath := make(map[string]*models.Folder)
	for _, song := range songs {
		path, name := FolderOf(song.URI)
		folder, ok := byPath[path]
		if !ok {
			folder = &models.Folder{Path: path, Name: name}
			byPath[path] = folder
		}
		folder.SongCount++
	}

	folders := make([]models.Folder, 0, len(byPath))
	for _, folder := range byPath {
		folders = append(folders, *folder)
	}

	// Collators are not safe for concurrent use.
	collator := collate.New(language.Und)
	sort.Slice(folders, func(i, j int) bool {
		if c := collator.CompareString(folders[i].Name, folders[j].Name); c != 0 {
			return c < 0
		}
		return folders[i].Path < folders[j].Path
	})

	if s.folders != nil {
		s.folders.Set(foldersCacheKey, slices.Clone(folders))
	}
	return folders
}

// SongsInFolder returns the songs whose folder path equals folderPath, newest
// first. Pass models.Folder.Path; the empty path selects root-level songs.
func (s *Service) SongsInFolder(ctx context.Context, folderPath string) []models.Song {
	songs, err := s.store.ListSongs(ctx, models.SortDateAdded)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folderPath).Error("Failed to list songs in folder")
		return []models.Song{}
	}

	matched := make([]models.Song, 0)
	for _, song := range songs {
		if path, _ := FolderOf(song.URI); path == folderPath {
			matched = append(matched, song)
		}
	}
	return matched
}
