package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legato/pkg/models"
)

// CreatePlaylist inserts a new playlist and returns its ID.
func (db *Database) CreatePlaylist(ctx context.Context, name string, createdAt time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO playlists (name, createdAt)
		VALUES (?, ?)`, name, toMillis(createdAt))
	if err != nil {
		return 0, fmt.Errorf("failed to create playlist: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read playlist id: %w", err)
	}
	return id, nil
}

const playlistSelect = `
	SELECT p.id, p.name, p.createdAt, COUNT(ps.songId) AS songCount
	FROM playlists p
	LEFT JOIN playlist_songs ps ON p.id = ps.playlistId`

// GetAllPlaylists returns all playlists with live song counts, newest first.
func (db *Database) GetAllPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := db.conn.QueryContext(ctx, playlistSelect+`
		GROUP BY p.id, p.name, p.createdAt
		ORDER BY p.createdAt DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	playlists := make([]models.Playlist, 0)
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	return playlists, rows.Err()
}

// GetPlaylist returns a single playlist with its song count.
func (db *Database) GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error) {
	row := db.conn.QueryRowContext(ctx, playlistSelect+`
		WHERE p.id = ?
		GROUP BY p.id, p.name, p.createdAt`, id)

	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %d: %w", id, err)
	}
	return &playlist, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaylist(row rowScanner) (models.Playlist, error) {
	var playlist models.Playlist
	var createdAt int64
	if err := row.Scan(&playlist.ID, &playlist.Name, &createdAt, &playlist.SongCount); err != nil {
		return models.Playlist{}, err
	}
	playlist.CreatedAt = fromMillis(createdAt)
	return playlist, nil
}

// GetPlaylistSongs returns a playlist's songs, most recently added first.
func (db *Database) GetPlaylistSongs(ctx context.Context, playlistID int64) ([]models.Song, error) {
	return db.querySongs(ctx, `
		SELECT s.id, s.title, s.uri, s.duration, s.modificationTime, s.isFavorite
		FROM songs s
		JOIN playlist_songs ps ON s.id = ps.songId
		WHERE ps.playlistId = ?
		ORDER BY ps.addedAt DESC, ps.id DESC`, playlistID)
}

// AddSongToPlaylist adds a membership row unless one already exists. It
// reports whether a row was added.
func (db *Database) AddSongToPlaylist(ctx context.Context, playlistID int64, songID string, addedAt time.Time) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO playlist_songs (playlistId, songId, addedAt)
		VALUES (?, ?, ?)
		ON CONFLICT(playlistId, songId) DO NOTHING`,
		playlistID, songID, toMillis(addedAt))
	if err != nil {
		return false, fmt.Errorf("failed to add song %s to playlist %d: %w", songID, playlistID, err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RemoveSongFromPlaylist removes a membership row and reports whether one
// existed.
func (db *Database) RemoveSongFromPlaylist(ctx context.Context, playlistID int64, songID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM playlist_songs
		WHERE playlistId = ? AND songId = ?`,
		playlistID, songID)
	if err != nil {
		return false, fmt.Errorf("failed to remove song %s from playlist %d: %w", songID, playlistID, err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsSongInPlaylist reports membership.
func (db *Database) IsSongInPlaylist(ctx context.Context, playlistID int64, songID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM playlist_songs WHERE playlistId = ? AND songId = ?)`,
		playlistID, songID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check playlist membership: %w", err)
	}
	return exists, nil
}

// DeletePlaylist deletes the playlist and its membership rows in one
// transaction.
func (db *Database) DeletePlaylist(ctx context.Context, playlistID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_songs WHERE playlistId = ?", playlistID); err != nil {
		return fmt.Errorf("failed to delete playlist %d songs: %w", playlistID, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", playlistID)
	if err != nil {
		return fmt.Errorf("failed to delete playlist %d: %w", playlistID, err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// RenamePlaylist updates a playlist's name.
func (db *Database) RenamePlaylist(ctx context.Context, playlistID int64, name string) error {
	result, err := db.conn.ExecContext(ctx, "UPDATE playlists SET name = ? WHERE id = ?", name, playlistID)
	if err != nil {
		return fmt.Errorf("failed to rename playlist %d: %w", playlistID, err)
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
