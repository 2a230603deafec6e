package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"legato/internal/database"
	"legato/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultSettleDelay is how long a new file is left alone before probing, so
// copies in progress are read once complete.
const DefaultSettleDelay = 500 * time.Millisecond

// WatcherOptions tune a Watcher.
type WatcherOptions struct {
	SettleDelay time.Duration
	// OnChange runs after every catalog change the watcher makes.
	OnChange func()
}

// Watcher applies filesystem changes below the library root to the catalog.
type Watcher struct {
	library  *DirectoryLibrary
	store    Store
	logger   *logrus.Logger
	settle   time.Duration
	onChange func()

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for library.
func NewWatcher(library *DirectoryLibrary, store Store, logger *logrus.Logger, opts WatcherOptions) *Watcher {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Watcher{
		library:  library,
		store:    store,
		logger:   logger,
		settle:   opts.SettleDelay,
		onChange: opts.OnChange,
	}
}

// Start watches the library root and all its subdirectories.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return errors.New("watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	w.done = make(chan struct{})

	if err := w.addDirectory(w.library.Root()); err != nil {
		watcher.Close()
		w.watcher = nil
		return err
	}

	w.wg.Add(1)
	go w.watchFiles(watcher)

	w.logger.WithField("library_path", w.library.Root()).Info("File watcher started")
	return nil
}

// Stop closes the watcher and waits for pending file handling to finish.
// It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	watcher := w.watcher
	w.watcher = nil
	close(w.done)
	w.mu.Unlock()

	watcher.Close()
	w.wg.Wait()
	w.logger.Info("File watcher stopped")
}

// addDirectory recursively adds dir and its subdirectories.
func (w *Watcher) addDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) watchFiles(watcher *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleEvent filters temporary and hidden files and dispatches the rest.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if isHidden(name) || strings.HasSuffix(name, ".tmp") {
		return
	}

	isAudio := w.library.extractor.IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isAudio:
		w.later(func() { w.handleNewFiles([]string{event.Name}) })

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && isAudio:
		w.later(func() { w.handleRemovedFile(event.Name) })

	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil || !info.IsDir() {
			return
		}
		w.mu.Lock()
		if w.watcher != nil {
			if err := w.addDirectory(event.Name); err != nil {
				w.logger.WithError(err).WithField("directory", event.Name).Warn("Failed to watch new directory")
			}
		}
		w.mu.Unlock()
		w.logger.WithField("directory", event.Name).Info("Watching new directory")

		// Files moved in with the directory produce no events of their own.
		w.later(func() { w.handleNewFiles(w.audioFilesIn(event.Name)) })
	}
}

// later runs fn after the settle delay unless the watcher stops first.
func (w *Watcher) later(fn func()) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-done:
		case <-time.After(w.settle):
			fn()
		}
	}()
}

func (w *Watcher) audioFilesIn(dir string) []string {
	var paths []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && !isHidden(d.Name()) && w.library.extractor.IsAudioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}

// handleNewFiles probes and upserts new audio files.
func (w *Watcher) handleNewFiles(paths []string) {
	songs := make([]models.Song, 0, len(paths))
	for _, path := range paths {
		asset, err := w.library.Probe(path)
		if err != nil {
			w.logger.WithError(err).WithField("file_path", path).Error("Error probing new audio file")
			continue
		}
		songs = append(songs, asset.Song())
	}
	if len(songs) == 0 {
		return
	}

	if err := w.store.UpsertSongs(context.Background(), songs); err != nil {
		w.logger.WithError(err).WithField("songs", len(songs)).Error("Error adding new songs to catalog")
		return
	}

	for _, song := range songs {
		w.logger.WithFields(logrus.Fields{
			"song_id": song.ID,
			"title":   song.Title,
		}).Info("Added new song")
	}
	w.changed()
}

// handleRemovedFile deletes the song for a removed or renamed file.
func (w *Watcher) handleRemovedFile(path string) {
	uri, err := FileURI(path)
	if err != nil {
		w.logger.WithError(err).WithField("file_path", path).Error("Error resolving removed file")
		return
	}

	err = w.store.DeleteSongByURI(context.Background(), uri)
	if errors.Is(err, database.ErrNotFound) {
		w.logger.WithField("file_path", path).Debug("Removed file was not in the catalog")
		return
	}
	if err != nil {
		w.logger.WithError(err).WithField("file_path", path).Error("Error removing song from catalog")
		return
	}

	w.logger.WithField("file_path", path).Info("Removed song from catalog")
	w.changed()
}

func (w *Watcher) changed() {
	if w.onChange != nil {
		w.onChange()
	}
}
