package database

import (
	"context"
	"fmt"
	"time"

	"legato/pkg/models"
)

// RecordPlay appends a play event for songID.
func (db *Database) RecordPlay(ctx context.Context, songID string, playedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO recent_plays (songId, playedAt) VALUES (?, ?)", songID, toMillis(playedAt))
	if err != nil {
		return fmt.Errorf("failed to record play of %s: %w", songID, err)
	}
	return nil
}

// ListeningTotals counts play events since the given time and sums the
// durations of the songs played.
func (db *Database) ListeningTotals(ctx context.Context, since time.Time) (models.ListeningStats, error) {
	var stats models.ListeningStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(r.id), COALESCE(SUM(s.duration), 0)
		FROM recent_plays r
		JOIN songs s ON s.id = r.songId
		WHERE r.playedAt >= ?`, toMillis(since)).Scan(&stats.TotalPlays, &stats.TotalTime)
	if err != nil {
		return models.ListeningStats{}, fmt.Errorf("failed to aggregate plays: %w", err)
	}
	return stats, nil
}

// MostPlayed ranks songs played since the given time by play count, then by
// total listening time.
func (db *Database) MostPlayed(ctx context.Context, since time.Time, limit int) ([]models.SongStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.id, s.title, s.uri, s.duration, s.modificationTime, s.isFavorite,
			COUNT(r.id) AS playCount,
			COALESCE(SUM(s.duration), 0) AS totalTime
		FROM recent_plays r
		JOIN songs s ON s.id = r.songId
		WHERE r.playedAt >= ?
		GROUP BY s.id
		ORDER BY playCount DESC, totalTime DESC, s.id ASC
		LIMIT ?`, toMillis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank songs: %w", err)
	}
	defer rows.Close()

	ranked := make([]models.SongStats, 0)
	for rows.Next() {
		var st models.SongStats
		if err := rows.Scan(&st.ID, &st.Title, &st.URI, &st.Duration, &st.ModificationTime, &st.IsFavorite,
			&st.PlayCount, &st.TotalTime); err != nil {
			return nil, err
		}
		ranked = append(ranked, st)
	}
	return ranked, rows.Err()
}

// RecentlyPlayed returns distinct songs ordered by their latest play.
func (db *Database) RecentlyPlayed(ctx context.Context, limit int) ([]models.Song, error) {
	return db.querySongs(ctx, `
		SELECT s.id, s.title, s.uri, s.duration, s.modificationTime, s.isFavorite
		FROM songs s
		JOIN (
			SELECT songId, MAX(playedAt) AS lastPlayed, MAX(id) AS lastID
			FROM recent_plays
			GROUP BY songId
		) r ON r.songId = s.id
		ORDER BY r.lastPlayed DESC, r.lastID DESC
		LIMIT ?`, limit)
}
