package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legato/pkg/models"
)

// AddSearchHistory appends a search query.
func (db *Database) AddSearchHistory(ctx context.Context, query string, searchedAt time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO search_history (query, searchedAt) VALUES (?, ?)", query, toMillis(searchedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to record search: %w", err)
	}
	return result.LastInsertId()
}

// GetSearchHistory returns up to limit entries, newest first. Repeated
// queries are returned as separate entries.
func (db *Database) GetSearchHistory(ctx context.Context, limit int) ([]models.SearchHistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, query, searchedAt FROM search_history
		ORDER BY searchedAt DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read search history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.SearchHistoryEntry, 0)
	for rows.Next() {
		var entry models.SearchHistoryEntry
		var searchedAt int64
		if err := rows.Scan(&entry.ID, &entry.Query, &searchedAt); err != nil {
			return nil, err
		}
		entry.SearchedAt = fromMillis(searchedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteSearchHistory removes every entry with exactly this query text.
func (db *Database) DeleteSearchHistory(ctx context.Context, query string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM search_history WHERE query = ?", query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete search %q: %w", query, err)
	}
	return rowsAffected(result)
}

// ClearSearchHistory removes all entries.
func (db *Database) ClearSearchHistory(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM search_history"); err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}

// PruneSearchHistory keeps the newest keep entries and deletes the rest.
func (db *Database) PruneSearchHistory(ctx context.Context, keep int) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE id NOT IN (
			SELECT id FROM search_history
			ORDER BY searchedAt DESC, id DESC
			LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune search history: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		db.logger.WithField("removed", n).Info("Pruned search history")
	}
	return n, nil
}

// SetPermission stores the last known status of a permission type.
func (db *Database) SetPermission(ctx context.Context, permissionType, status string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO permissions (type, status) VALUES (?, ?)", permissionType, status)
	if err != nil {
		return fmt.Errorf("failed to set permission %s: %w", permissionType, err)
	}
	return nil
}

// GetPermission returns the stored status of a permission type. found is
// false when it was never recorded.
func (db *Database) GetPermission(ctx context.Context, permissionType string) (status string, found bool, err error) {
	err = db.conn.QueryRowContext(ctx,
		"SELECT status FROM permissions WHERE type = ?", permissionType).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get permission %s: %w", permissionType, err)
	}
	return status, true, nil
}
