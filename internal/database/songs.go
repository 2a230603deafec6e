package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

const songColumns = "id, title, uri, duration, modificationTime, isFavorite"

// orderClauses maps listing modes to ORDER BY clauses. id breaks ties so
// listings are stable.
var orderClauses = map[models.SortKey]string{
	models.SortTitleAsc:  "title COLLATE NOCASE ASC, id ASC",
	models.SortTitleDesc: "title COLLATE NOCASE DESC, id ASC",
	models.SortDuration:  "duration DESC, id ASC",
	models.SortDateAdded: "modificationTime DESC, id ASC",
}

// UpsertSongs inserts or updates every song in one transaction: either the
// whole batch commits or nothing does. Songs are keyed by id; a row holding
// the same uri under a different id is replaced. The favorite flag of an
// existing row is preserved.
//
// An empty batch, or one in which every song lacks an id or uri, triggers a
// single re-fetch from the registered AssetSource. Unlike the rest of the
// store's callers, ingestion needs to react to failures, so errors propagate.
func (db *Database) UpsertSongs(ctx context.Context, songs []models.Song) error {
	valid := validSongs(songs)
	if dropped := len(songs) - len(valid); dropped > 0 {
		db.logger.WithField("dropped", dropped).Warn("Dropping songs without id or uri")
	}

	if len(valid) == 0 {
		refetched, err := db.refetchSongs(ctx)
		if err != nil {
			return err
		}
		if len(refetched) == 0 {
			db.logger.Info("No songs to upsert")
			return nil
		}
		valid = refetched
	}

	return db.upsertSongs(ctx, valid)
}

// refetchSongs re-derives the song list from the asset source, newest first.
func (db *Database) refetchSongs(ctx context.Context) ([]models.Song, error) {
	if db.source == nil {
		db.logger.Warn("Empty song batch and no asset source registered")
		return nil, nil
	}

	db.logger.Info("Empty song batch, re-fetching from asset source")
	assets, err := db.source.FetchAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to re-fetch assets: %w", err)
	}

	songs := make([]models.Song, 0, len(assets))
	for _, asset := range assets {
		songs = append(songs, asset.Song())
	}
	songs = validSongs(songs)
	sort.SliceStable(songs, func(i, j int) bool {
		return songs[i].ModificationTime > songs[j].ModificationTime
	})
	return songs, nil
}

func (db *Database) upsertSongs(ctx context.Context, songs []models.Song) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	staleStmt, err := tx.PrepareContext(ctx, `SELECT id FROM songs WHERE uri = ? AND id <> ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare stale lookup: %w", err)
	}
	defer staleStmt.Close()

	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO songs (id, title, uri, duration, modificationTime, isFavorite)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			uri=excluded.uri,
			duration=excluded.duration,
			modificationTime=excluded.modificationTime`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer upsertStmt.Close()

	replaced := 0
	for _, song := range songs {
		var staleID string
		err := staleStmt.QueryRowContext(ctx, song.URI, song.ID).Scan(&staleID)
		switch {
		case err == nil:
			if err := deleteSongTx(ctx, tx, staleID); err != nil {
				return err
			}
			replaced++
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up uri %s: %w", song.URI, err)
		}

		if _, err := upsertStmt.ExecContext(ctx,
			song.ID, song.Title, song.URI, song.Duration, song.ModificationTime, song.IsFavorite); err != nil {
			db.logger.WithError(err).WithField("song_id", song.ID).Error("Failed to upsert song")
			return fmt.Errorf("failed to upsert song %s: %w", song.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit song batch: %w", err)
	}

	db.logger.WithFields(logrus.Fields{
		"songs":    len(songs),
		"replaced": replaced,
	}).Info("Upserted songs")
	return nil
}

// ReconcileSongs deletes every song whose id is not in keepIDs, together with
// its playlist memberships and play events. An empty keep set is refused so an
// unreadable library never wipes the catalog.
func (db *Database) ReconcileSongs(ctx context.Context, keepIDs []string) (int64, error) {
	if len(keepIDs) == 0 {
		db.logger.Warn("Skipping reconciliation against an empty enumeration")
		return 0, nil
	}

	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = struct{}{}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM songs")
	if err != nil {
		return 0, fmt.Errorf("failed to list song ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range stale {
		if err := deleteSongTx(ctx, tx, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reconciliation: %w", err)
	}

	if len(stale) > 0 {
		db.logger.WithField("removed", len(stale)).Info("Removed songs missing from the library")
	}
	return int64(len(stale)), nil
}

// DeleteSongByURI removes a song and its dependent rows. It returns
// ErrNotFound when no song has that uri.
func (db *Database) DeleteSongByURI(ctx context.Context, uri string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, "SELECT id FROM songs WHERE uri = ?", uri).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up uri %s: %w", uri, err)
	}

	if err := deleteSongTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit song removal: %w", err)
	}

	db.logger.WithField("uri", uri).Info("Removed song")
	return nil
}

// deleteSongTx deletes dependents before the song itself, so the effect is the
// same whether or not the engine enforces cascading foreign keys.
func deleteSongTx(ctx context.Context, tx *sql.Tx, id string) error {
	statements := []string{
		"DELETE FROM playlist_songs WHERE songId = ?",
		"DELETE FROM recent_plays WHERE songId = ?",
		"DELETE FROM songs WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete song %s: %w", id, err)
		}
	}
	return nil
}

// GetSong returns a single song by id.
func (db *Database) GetSong(ctx context.Context, id string) (*models.Song, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs WHERE id = ?", id)

	var song models.Song
	err := row.Scan(&song.ID, &song.Title, &song.URI, &song.Duration, &song.ModificationTime, &song.IsFavorite)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song %s: %w", id, err)
	}
	return &song, nil
}

// ListSongs returns every song in the requested order. Unknown keys sort by
// date added.
func (db *Database) ListSongs(ctx context.Context, sortKey models.SortKey) ([]models.Song, error) {
	order, ok := orderClauses[sortKey]
	if !ok {
		order = orderClauses[models.SortDateAdded]
	}
	return db.querySongs(ctx, "SELECT "+songColumns+" FROM songs ORDER BY "+order)
}

// SearchSongs returns songs whose title contains query, newest first. LIKE
// wildcards in query match literally.
func (db *Database) SearchSongs(ctx context.Context, query string) ([]models.Song, error) {
	pattern := "%" + escapeLike(query) + "%"
	return db.querySongs(ctx, `
		SELECT `+songColumns+` FROM songs
		WHERE title LIKE ? ESCAPE '\'
		ORDER BY modificationTime DESC, id ASC`, pattern)
}

// FavoriteSongs returns favorited songs, newest first.
func (db *Database) FavoriteSongs(ctx context.Context) ([]models.Song, error) {
	return db.querySongs(ctx, `
		SELECT `+songColumns+` FROM songs
		WHERE isFavorite = 1
		ORDER BY modificationTime DESC, id ASC`)
}

// ShuffledSongs returns every song in engine-random order.
func (db *Database) ShuffledSongs(ctx context.Context) ([]models.Song, error) {
	return db.querySongs(ctx, "SELECT "+songColumns+" FROM songs ORDER BY RANDOM()")
}

// SetFavorite sets the favorite flag. It returns ErrNotFound for unknown ids.
func (db *Database) SetFavorite(ctx context.Context, id string, favorite bool) error {
	result, err := db.conn.ExecContext(ctx, "UPDATE songs SET isFavorite = ? WHERE id = ?", favorite, id)
	if err != nil {
		return fmt.Errorf("failed to set favorite for %s: %w", id, err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsFavorite reports whether a song is favorited.
func (db *Database) IsFavorite(ctx context.Context, id string) (bool, error) {
	var favorite bool
	err := db.conn.QueryRowContext(ctx, "SELECT isFavorite FROM songs WHERE id = ?", id).Scan(&favorite)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read favorite for %s: %w", id, err)
	}
	return favorite, nil
}

// CountSongs returns the number of songs in the catalog.
func (db *Database) CountSongs(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM songs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return count, nil
}

// SongsWithPlayCounts returns every song with its all-time play count,
// ordered by id.
func (db *Database) SongsWithPlayCounts(ctx context.Context) ([]models.WeightedSong, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.id, s.title, s.uri, s.duration, s.modificationTime, s.isFavorite, COUNT(r.id)
		FROM songs s
		LEFT JOIN recent_plays r ON r.songId = s.id
		GROUP BY s.id
		ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load play counts: %w", err)
	}
	defer rows.Close()

	weighted := make([]models.WeightedSong, 0)
	for rows.Next() {
		var w models.WeightedSong
		if err := rows.Scan(&w.ID, &w.Title, &w.URI, &w.Duration, &w.ModificationTime, &w.IsFavorite, &w.PlayCount); err != nil {
			return nil, err
		}
		weighted = append(weighted, w)
	}
	return weighted, rows.Err()
}

func (db *Database) querySongs(ctx context.Context, query string, args ...any) ([]models.Song, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()
	return scanSongRows(rows)
}

// scanSongRows scans result sets selecting songColumns. It never returns a nil
// slice on success. Callers must have already deferred rows.Close().
func scanSongRows(rows *sql.Rows) ([]models.Song, error) {
	songs := make([]models.Song, 0)
	for rows.Next() {
		var song models.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.URI, &song.Duration, &song.ModificationTime, &song.IsFavorite); err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return songs, nil
}

func validSongs(songs []models.Song) []models.Song {
	valid := make([]models.Song, 0, len(songs))
	for _, song := range songs {
		if strings.TrimSpace(song.ID) == "" || strings.TrimSpace(song.URI) == "" {
			continue
		}
		valid = append(valid, song)
	}
	return valid
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
