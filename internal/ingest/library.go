// Package ingest feeds the catalog from the music directory: paged
// enumeration, full syncs with reconciliation, a filesystem watcher for
// incremental changes and a cron-driven rescan.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"legato/internal/metadata"
	"legato/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// songNamespace scopes song ids derived from file URIs.
var songNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("legato:song"))

// DefaultPageSize is used when a non-positive page size is requested.
const DefaultPageSize = 100

// AssetPage is one page of a paged media enumeration.
type AssetPage struct {
	Assets      []models.Asset
	EndCursor   string
	HasNextPage bool
}

// AssetLibrary enumerates audio assets in pages. after is the EndCursor of
// the previous page, "" for the first.
type AssetLibrary interface {
	Page(ctx context.Context, after string, first int) (AssetPage, error)
}

// SongID returns the stable id of the song at uri.
func SongID(uri string) string {
	return uuid.NewSHA1(songNamespace, []byte(uri)).String()
}

// FileURI returns the file:// URL for a local path.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// DirectoryLibrary enumerates the audio files below a root directory. Pages
// are ordered by path and the cursor is the last path returned, so files
// added or removed between pages neither shift nor repeat the remainder.
type DirectoryLibrary struct {
	root      string
	extractor *metadata.Extractor
	logger    *logrus.Logger
	workers   int
}

// NewDirectoryLibrary creates a library rooted at root.
func NewDirectoryLibrary(root string, extractor *metadata.Extractor, logger *logrus.Logger) *DirectoryLibrary {
	return &DirectoryLibrary{
		root:      root,
		extractor: extractor,
		logger:    logger,
		workers:   runtime.NumCPU(),
	}
}

// Root returns the library directory.
func (l *DirectoryLibrary) Root() string {
	return l.root
}

// Page probes up to first audio files whose path sorts after the cursor.
// Files that cannot be probed are skipped.
func (l *DirectoryLibrary) Page(ctx context.Context, after string, first int) (AssetPage, error) {
	if first < 1 {
		first = DefaultPageSize
	}

	paths, err := l.audioPaths(ctx)
	if err != nil {
		return AssetPage{}, err
	}

	start, found := slices.BinarySearch(paths, after)
	if found {
		start++
	}
	end := min(start+first, len(paths))
	batch := paths[start:end]

	page := AssetPage{
		Assets:      l.probeAll(ctx, batch),
		HasNextPage: end < len(paths),
	}
	if len(batch) > 0 {
		page.EndCursor = batch[len(batch)-1]
	} else {
		page.EndCursor = after
	}
	if err := ctx.Err(); err != nil {
		return AssetPage{}, err
	}
	return page, nil
}

// audioPaths lists every audio file below the root, sorted.
func (l *DirectoryLibrary) audioPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isHidden(d.Name()) && l.extractor.IsAudioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// probeAll probes paths with a worker pool, keeping input order.
func (l *DirectoryLibrary) probeAll(ctx context.Context, paths []string) []models.Asset {
	results := make([]*models.Asset, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < max(1, min(l.workers, len(paths))); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				asset, err := l.Probe(paths[idx])
				if err != nil {
					l.logger.WithError(err).WithField("file_path", paths[idx]).Warn("Skipping unreadable audio file")
					continue
				}
				results[idx] = &asset
			}
		}()
	}

	for idx := range paths {
		if ctx.Err() != nil {
			break
		}
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	assets := make([]models.Asset, 0, len(paths))
	for _, asset := range results {
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	return assets
}

// Probe reads a single file into a fully identified asset.
func (l *DirectoryLibrary) Probe(path string) (models.Asset, error) {
	asset, err := l.extractor.Probe(path)
	if err != nil {
		return models.Asset{}, err
	}
	uri, err := FileURI(path)
	if err != nil {
		return models.Asset{}, err
	}
	asset.URI = uri
	asset.ID = SongID(uri)
	return asset, nil
}

// FetchAll drains every page of lib and returns the assets newest first.
func FetchAll(ctx context.Context, lib AssetLibrary, pageSize int) ([]models.Asset, error) {
	var assets []models.Asset
	cursor := ""
	for {
		page, err := lib.Page(ctx, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		assets = append(assets, page.Assets...)
		if !page.HasNextPage {
			break
		}
		cursor = page.EndCursor
	}

	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].ModificationTime > assets[j].ModificationTime
	})
	return assets, nil
}

// Scanner adapts an AssetLibrary to the catalog store's asset source.
type Scanner struct {
	library  AssetLibrary
	pageSize int
}

// NewScanner creates a scanner reading pageSize assets per page.
func NewScanner(library AssetLibrary, pageSize int) *Scanner {
	return &Scanner{library: library, pageSize: pageSize}
}

// FetchAssets enumerates the whole library, newest first.
func (s *Scanner) FetchAssets(ctx context.Context) ([]models.Asset, error) {
	return FetchAll(ctx, s.library, s.pageSize)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
